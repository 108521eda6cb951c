package connect

import (
	"encoding/json"
	"time"
)

// Content is a deployed item on the platform.
type Content struct {
	GUID             string    `json:"guid"`
	Name             string    `json:"name"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	AppMode          string    `json:"app_mode"`
	ContentCategory  string    `json:"content_category"`
	CreatedTime      time.Time `json:"created_time"`
	LastDeployedTime time.Time `json:"last_deployed_time"`
	OwnerGUID        string    `json:"owner_guid"`
	Locked           bool      `json:"locked"`
	LockedMessage    string    `json:"locked_message"`
	ContentURL       string    `json:"content_url"`
	DashboardURL     string    `json:"dashboard_url"`
	AppRole          string    `json:"app_role"`
	BundleID         string    `json:"bundle_id"`
	AccessType       string    `json:"access_type"`
	Owner            *User     `json:"owner,omitempty"`
}

// DisplayName prefers the title over the name.
func (c Content) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Name
}

// ContentPatch carries the mutable fields of a content item.
type ContentPatch struct {
	Title         *string `json:"title,omitempty"`
	Locked        *bool   `json:"locked,omitempty"`
	LockedMessage *string `json:"locked_message,omitempty"`
}

// User is a platform account.
type User struct {
	GUID        string    `json:"guid"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	UserRole    string    `json:"user_role"`
	CreatedTime time.Time `json:"created_time"`
	ActiveTime  time.Time `json:"active_time"`
	Locked      bool      `json:"locked"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// JobRunning is the status of a job that has not exited.
const JobRunning = 0

// Job is one execution of a content item.
type Job struct {
	ID                string    `json:"id"`
	Key               string    `json:"key"`
	PID               string    `json:"pid"`
	AppGUID           string    `json:"app_guid,omitempty"`
	ContentGUID       string    `json:"content_guid,omitempty"`
	BundleID          string    `json:"bundle_id"`
	Tag               string    `json:"tag"`
	Status            int       `json:"status"`
	ExitCode          *int      `json:"exit_code"`
	Hostname          string    `json:"hostname"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	LastHeartbeatTime time.Time `json:"last_heartbeat_time"`
	QueuedTime        time.Time `json:"queued_time"`
}

// Running reports whether the job is still active.
func (j Job) Running() bool { return j.Status == JobRunning }

// Process is a live process reported by metrics/procs.
type Process struct {
	PID        int       `json:"pid"`
	AppID      int       `json:"app_id"`
	AppGUID    string    `json:"app_guid"`
	AppName    string    `json:"app_name"`
	Type       string    `json:"type"`
	CPUCurrent float64   `json:"cpu_current"`
	CPUTotal   float64   `json:"cpu_total"`
	RAM        int64     `json:"ram"`
	Hostname   string    `json:"hostname"`
	StartTime  time.Time `json:"start_time"`
}

// Bundle is an uploaded deployment archive.
type Bundle struct {
	ID          string    `json:"id"`
	ContentGUID string    `json:"content_guid"`
	CreatedTime time.Time `json:"created_time"`
	Active      bool      `json:"active"`
	Size        int64     `json:"size"`
	RVersion    string    `json:"r_version"`
	PyVersion   string    `json:"py_version"`
}

// Visit is one recorded view of a content item.
type Visit struct {
	ContentGUID string    `json:"content_guid"`
	UserGUID    string    `json:"user_guid"`
	VariantKey  string    `json:"variant_key"`
	BundleID    string    `json:"bundle_id"`
	Time        time.Time `json:"time"`
	Path        string    `json:"path"`
}

// OAuthSession is a stored OAuth association between a user and an integration.
type OAuthSession struct {
	GUID            string    `json:"guid"`
	UserGUID        string    `json:"user_guid"`
	IntegrationGUID string    `json:"oauth_integration_guid"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	CreatedTime     time.Time `json:"created_time"`
	UpdatedTime     time.Time `json:"updated_time"`
}

// OAuthIntegration is a configured OAuth credential provider.
type OAuthIntegration struct {
	GUID        string          `json:"guid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Template    string          `json:"template"`
	Config      json.RawMessage `json:"config,omitempty"`
	CreatedTime time.Time       `json:"created_time"`
	UpdatedTime time.Time       `json:"updated_time"`
}

// Credentials is the result of an OAuth token exchange.
type Credentials struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
}

// Task tracks an asynchronous platform operation such as a deploy.
type Task struct {
	ID       string   `json:"id"`
	Output   []string `json:"output"`
	Finished bool     `json:"finished"`
	Code     int      `json:"code"`
	Error    string   `json:"error"`
	Last     int      `json:"last"`
}

// TraceDocument is one line of a job's OTLP trace output.
type TraceDocument map[string]any
