// Package oauthview joins OAuth sessions with their users and integrations
// and decodes the tokens a visitor holds.
package oauthview

import (
	"sort"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

// SessionRow is a session joined with its user and integration names.
type SessionRow struct {
	GUID            string    `json:"guid"`
	UserGUID        string    `json:"user_guid"`
	UserName        string    `json:"user_name"`
	IntegrationGUID string    `json:"integration_guid"`
	IntegrationName string    `json:"integration_name"`
	CreatedTime     time.Time `json:"created_time"`
	UpdatedTime     time.Time `json:"updated_time"`
}

// Count is a session tally for one user or integration.
type Count struct {
	GUID  string `json:"guid"`
	Name  string `json:"name"`
	Count int    `json:"session_count"`
}

// Overview is the session manager's page model.
type Overview struct {
	Sessions     []SessionRow `json:"sessions"`
	Integrations []Count      `json:"integrations"`
	Users        []Count      `json:"users"`
}

// Join attaches user and integration names to sessions, newest first.
// Unknown users or integrations leave the name empty.
func Join(sessions []connect.OAuthSession, users []connect.User, integrations []connect.OAuthIntegration) []SessionRow {
	userNames := make(map[string]string, len(users))
	for _, u := range users {
		userNames[u.GUID] = u.Username
	}
	integrationNames := make(map[string]string, len(integrations))
	for _, in := range integrations {
		integrationNames[in.GUID] = in.Name
	}

	rows := make([]SessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, SessionRow{
			GUID:            s.GUID,
			UserGUID:        s.UserGUID,
			UserName:        userNames[s.UserGUID],
			IntegrationGUID: s.IntegrationGUID,
			IntegrationName: integrationNames[s.IntegrationGUID],
			CreatedTime:     s.CreatedTime,
			UpdatedTime:     s.UpdatedTime,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedTime.After(rows[j].CreatedTime) })
	return rows
}

// Summarize builds the overview with per-integration and per-user counts,
// largest first.
func Summarize(rows []SessionRow) Overview {
	return Overview{
		Sessions: rows,
		Integrations: tally(rows, func(r SessionRow) (string, string) {
			return r.IntegrationGUID, r.IntegrationName
		}),
		Users: tally(rows, func(r SessionRow) (string, string) {
			return r.UserGUID, r.UserName
		}),
	}
}

func tally(rows []SessionRow, key func(SessionRow) (string, string)) []Count {
	index := map[string]int{}
	out := []Count{}
	for _, r := range rows {
		guid, name := key(r)
		if i, ok := index[guid]; ok {
			out[i].Count++
			continue
		}
		index[guid] = len(out)
		out = append(out, Count{GUID: guid, Name: name, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
