package traces

import (
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

// ContentItem is the trace viewer's listing of a content item.
type ContentItem struct {
	GUID             string     `json:"guid"`
	Name             string     `json:"name"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	AppMode          string     `json:"app_mode"`
	CreatedTime      *time.Time `json:"created_time"`
	LastDeployedTime *time.Time `json:"last_deployed_time"`
	DashboardURL     string     `json:"dashboard_url"`
}

// ListItems reshapes content for the viewer; the title falls back to the name.
func ListItems(items []connect.Content) []ContentItem {
	out := make([]ContentItem, 0, len(items))
	for _, c := range items {
		out = append(out, ContentItem{
			GUID:             c.GUID,
			Name:             c.Name,
			Title:            c.DisplayName(),
			Description:      c.Description,
			AppMode:          c.AppMode,
			CreatedTime:      timePtr(c.CreatedTime),
			LastDeployedTime: timePtr(c.LastDeployedTime),
			DashboardURL:     c.DashboardURL,
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
