package dag

import (
	"time"
	"unicode/utf8"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

const (
	searchLimit    = 10
	descriptionMax = 100
)

// SearchHit is a content item offered to the editor's node palette.
type SearchHit struct {
	GUID             string     `json:"guid"`
	Name             string     `json:"name"`
	ContentType      string     `json:"content_type"`
	URL              string     `json:"url"`
	Description      string     `json:"description"`
	CreatedTime      *time.Time `json:"created_time,omitempty"`
	LastDeployedTime *time.Time `json:"last_deployed_time,omitempty"`
	Author           string     `json:"author"`
}

// SearchHits reshapes up to ten search results. Names fall back to the
// title, long descriptions are cut to 100 characters.
func SearchHits(items []connect.Content) []SearchHit {
	if len(items) > searchLimit {
		items = items[:searchLimit]
	}
	out := make([]SearchHit, 0, len(items))
	for _, c := range items {
		hit := SearchHit{
			GUID:             c.GUID,
			Name:             orDefault(c.Name, orDefault(c.Title, "Unknown")),
			ContentType:      orDefault(c.AppMode, "unknown"),
			URL:              c.ContentURL,
			Description:      c.Description,
			CreatedTime:      knownTime(c.CreatedTime),
			LastDeployedTime: knownTime(c.LastDeployedTime),
			Author:           "Unknown",
		}
		if utf8.RuneCountInString(hit.Description) > descriptionMax {
			hit.Description = string([]rune(hit.Description)[:descriptionMax]) + "..."
		}
		if c.Owner != nil && c.Owner.Username != "" {
			hit.Author = c.Owner.Username
		}
		out = append(out, hit)
	}
	return out
}

func knownTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
