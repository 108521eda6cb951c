package connect

import (
	"context"
	"net/url"
	"strconv"
)

const (
	visitsPageSize = 500
	maxVisitPages  = 200
)

type visitsPage struct {
	Paging struct {
		Cursors struct {
			Next string `json:"next"`
		} `json:"cursors"`
	} `json:"paging"`
	Results []Visit `json:"results"`
}

// ContentVisits returns the recorded visits to a content item.
func (c *Client) ContentVisits(ctx context.Context, guid string) ([]Visit, error) {
	visits := []Visit{}
	q := url.Values{
		"content_guid": {guid},
		"limit":        {strconv.Itoa(visitsPageSize)},
	}
	for range maxVisitPages {
		var p visitsPage
		if err := c.get(ctx, "instrumentation.visits", "v1/instrumentation/content/visits", q, &p); err != nil {
			return nil, err
		}
		visits = append(visits, p.Results...)
		next := p.Paging.Cursors.Next
		if next == "" || len(p.Results) == 0 {
			break
		}
		q.Set("next", next)
	}
	return visits, nil
}
