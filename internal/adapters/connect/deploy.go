package connect

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// UploadBundle uploads a tar.gz archive as a new bundle of the content item.
func (c *Client) UploadBundle(ctx context.Context, guid string, archive io.Reader) (Bundle, error) {
	var out Bundle
	err := c.do(ctx, request{
		op:          "bundles.upload",
		method:      http.MethodPost,
		path:        contentPath(guid) + "/bundles",
		body:        archive,
		contentType: "application/gzip",
	}, &out)
	return out, err
}

// Deploy activates a bundle and returns the id of the deployment task.
func (c *Client) Deploy(ctx context.Context, guid, bundleID string) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	in := map[string]string{"bundle_id": bundleID}
	if err := c.sendJSON(ctx, "content.deploy", http.MethodPost, contentPath(guid)+"/deploy", in, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// GetTask returns a task's state, with output lines starting at first.
func (c *Client) GetTask(ctx context.Context, id string, first int) (Task, error) {
	var out Task
	q := url.Values{"first": {strconv.Itoa(first)}}
	err := c.get(ctx, "tasks.get", "v1/tasks/"+url.PathEscape(id), q, &out)
	return out, err
}
