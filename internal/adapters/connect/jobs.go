package connect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

// ListJobs returns the jobs recorded for a content item.
func (c *Client) ListJobs(ctx context.Context, guid string) ([]Job, error) {
	var out []Job
	if err := c.get(ctx, "jobs.list", contentPath(guid)+"/jobs", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ContentGUID == "" {
			out[i].ContentGUID = guid
		}
	}
	return out, nil
}

// GetJob returns one job by key.
func (c *Client) GetJob(ctx context.Context, guid, key string) (Job, error) {
	var out Job
	err := c.get(ctx, "jobs.get", jobPath(guid, key), nil, &out)
	if out.ContentGUID == "" {
		out.ContentGUID = guid
	}
	return out, err
}

// DestroyJob asks the platform to terminate a job. It does not wait.
func (c *Client) DestroyJob(ctx context.Context, guid, key string) error {
	return c.do(ctx, request{op: "jobs.destroy", method: http.MethodDelete, path: jobPath(guid, key)}, nil)
}

// JobTraces returns the OTLP trace documents a job emitted. The platform
// serves them as newline-delimited JSON; blank and malformed lines are
// skipped, and a job without traces yields an empty slice.
func (c *Client) JobTraces(ctx context.Context, guid, key string) ([]TraceDocument, error) {
	resp, err := c.send(ctx, request{
		op:     "jobs.traces",
		method: http.MethodGet,
		path:   jobPath(guid, key) + "/traces",
		query:  url.Values{"limit": {"0"}},
		accept: "application/x-ndjson",
	})
	if err != nil {
		if IsNotFound(err) {
			return []TraceDocument{}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()
	return ParseTraceLines(resp.Body)
}

// ParseTraceLines decodes newline-delimited JSON objects from r.
func ParseTraceLines(r io.Reader) ([]TraceDocument, error) {
	docs := []TraceDocument{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc TraceDocument
		if err := json.Unmarshal(line, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, sc.Err()
}

// Processes returns every live process on the server (metrics/procs).
func (c *Client) Processes(ctx context.Context) ([]Process, error) {
	var out []Process
	err := c.get(ctx, "metrics.procs", "metrics/procs", nil, &out)
	return out, err
}

func jobPath(guid, key string) string {
	return contentPath(guid) + "/jobs/" + url.PathEscape(key)
}
