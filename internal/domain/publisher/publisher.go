// Package publisher reshapes a publisher's content, processes and visits
// for the command center and content manager pages.
package publisher

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

// NoName is shown for empty names.
const NoName = "No Name"

// ContentWithProcesses is a content item and its live processes.
type ContentWithProcesses struct {
	connect.Content
	Processes []connect.Process `json:"processes"`
}

// FilterProcesses keeps the processes that belong to guid.
func FilterProcesses(procs []connect.Process, guid string) []connect.Process {
	out := []connect.Process{}
	for _, p := range procs {
		if p.AppGUID == guid {
			out = append(out, p)
		}
	}
	return out
}

// JoinProcesses attaches each content item's processes.
func JoinProcesses(items []connect.Content, procs []connect.Process) []ContentWithProcesses {
	byApp := map[string][]connect.Process{}
	for _, p := range procs {
		byApp[p.AppGUID] = append(byApp[p.AppGUID], p)
	}
	out := make([]ContentWithProcesses, 0, len(items))
	for _, c := range items {
		ps := byApp[c.GUID]
		if ps == nil {
			ps = []connect.Process{}
		}
		out = append(out, ContentWithProcesses{Content: c, Processes: ps})
	}
	return out
}

// Details is the content card of a summary.
type Details struct {
	Name    string `json:"name"`
	Updated string `json:"updated"`
	Created string `json:"created"`
}

// Author is the owner card of a summary.
type Author struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	LastActive string `json:"last_active"`
}

// Activity is the visit card of a summary.
type Activity struct {
	Views      int    `json:"views"`
	LastVisit  string `json:"last_visit"`
	FirstVisit string `json:"first_visit"`
}

// Instance is one running process of the content.
type Instance struct {
	PID     int    `json:"pid"`
	Started string `json:"started"`
	CPUs    string `json:"cpus"`
	Memory  string `json:"memory"`
	Host    string `json:"host"`
}

// Summary is the content manager detail view.
type Summary struct {
	GUID      string     `json:"guid"`
	Details   Details    `json:"details"`
	Author    Author     `json:"author"`
	Activity  *Activity  `json:"activity,omitempty"`
	Instances []Instance `json:"instances"`
}

// Summarize formats content, owner, visits and processes relative to now.
// Activity is omitted when there are no visits.
func Summarize(c connect.Content, owner connect.User, visits []connect.Visit, procs []connect.Process, now time.Time) Summary {
	s := Summary{
		GUID: c.GUID,
		Details: Details{
			Name:    orNoName(c.Title),
			Updated: Ago(c.LastDeployedTime, now),
			Created: Date(c.CreatedTime),
		},
		Author: Author{
			FirstName:  orNoName(owner.FirstName),
			LastName:   orNoName(owner.LastName),
			Email:      orNoName(owner.Email),
			LastActive: Ago(owner.ActiveTime, now),
		},
		Instances: []Instance{},
	}

	if len(visits) > 0 {
		times := make([]time.Time, 0, len(visits))
		for _, v := range visits {
			times = append(times, v.Time)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		s.Activity = &Activity{
			Views:      len(times),
			LastVisit:  Ago(times[len(times)-1], now),
			FirstVisit: Date(times[0]),
		}
	}

	for _, p := range FilterProcesses(procs, c.GUID) {
		s.Instances = append(s.Instances, Instance{
			PID:     p.PID,
			Started: Ago(p.StartTime, now),
			CPUs:    strconv.FormatFloat(p.CPUCurrent, 'f', 1, 64),
			Memory:  Size(p.RAM),
			Host:    p.Hostname,
		})
	}
	return s
}

// Ago renders t relative to now, e.g. "3 hours ago". Zero times render empty.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Size renders a byte count in the short binary style of GNU tools:
// "512B", "1.5M", "2.0G".
func Size(n int64) string {
	const unit = 1024
	if n < 0 {
		n = 0
	}
	if n < unit {
		return strconv.FormatInt(n, 10) + "B"
	}
	v := float64(n) / unit
	for _, suffix := range "KMGTPEZ" {
		if v < unit {
			return fmt.Sprintf("%.1f%c", v, suffix)
		}
		v /= unit
	}
	return fmt.Sprintf("%.1fY", v)
}

// Date renders t as e.g. "Mar 1st, 2025".
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %s, %d", t.Format("Jan"), humanize.Ordinal(t.Day()), t.Year())
}

func orNoName(s string) string {
	if s == "" {
		return NoName
	}
	return s
}
