package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/okian/connect-extensions/internal/adapters/bundle"
	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/repository"
	"github.com/okian/connect-extensions/internal/domain/dag"
	"github.com/okian/connect-extensions/internal/domain/poll"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

const (
	searchPageSize   = 10
	metadataFile     = "metadata.json"
	minContentName   = 3
	maxContentName   = 64
	untitledDAGName  = "dag-execution"
	contentNameIDLen = 8
)

// DAGCheck is the outcome of validating a DAG without saving it.
type DAGCheck struct {
	dag.Validation
	Batches [][]string `json:"batches,omitempty"`
	Mermaid string     `json:"mermaid,omitempty"`
}

// Publication describes content created by publishing a DAG.
type Publication struct {
	ArtifactID   string `json:"artifact_id"`
	ContentGUID  string `json:"content_guid"`
	BundleID     string `json:"bundle_id"`
	TaskID       string `json:"task_id"`
	ContentURL   string `json:"content_url"`
	DashboardURL string `json:"dashboard_url"`
}

// Download is an exported artifact archive.
type Download struct {
	Filename string
	Data     []byte
}

func recordDAG(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordDAGOperation(op, outcome)
}

// DAGUser resolves the GUID of the user a DAG request acts as.
func (s *Service) DAGUser(ctx context.Context, c Caller) (string, error) {
	me, err := s.Me(ctx, c)
	if err != nil {
		return "", err
	}
	return me.GUID, nil
}

// build validates in and computes everything an artifact stores.
func build(in dag.Input) (repository.Artifact, [][]dag.Node, error) {
	if msgs := dag.ValidateInput(in); len(msgs) > 0 {
		return repository.Artifact{}, nil, &ValidationError{Errors: msgs}
	}
	nodes, edges := dag.FromInput(in)
	if v := dag.Validate(nodes, edges); !v.IsValid {
		return repository.Artifact{}, nil, &ValidationError{Errors: v.Errors}
	}
	batches, err := dag.TopologicalBatches(nodes, edges)
	if err != nil {
		return repository.Artifact{}, nil, &ValidationError{Errors: []string{err.Error()}}
	}
	doc, err := dag.Document(in.Title, nodes, edges, batches)
	if err != nil {
		return repository.Artifact{}, nil, fmt.Errorf("generate document: %w", err)
	}
	return repository.Artifact{
		Title:    in.Title,
		Nodes:    nodes,
		Edges:    edges,
		Batches:  dag.BatchIDs(batches),
		Document: doc,
	}, batches, nil
}

// ValidateDAG checks a DAG without persisting it.
func (s *Service) ValidateDAG(_ context.Context, in dag.Input) DAGCheck {
	a, batches, err := build(in)
	if err != nil {
		msgs := []string{err.Error()}
		var verr *ValidationError
		if errors.As(err, &verr) {
			msgs = verr.Errors
		}
		recordDAG("validate", err)
		return DAGCheck{Validation: dag.Validation{IsValid: false, Errors: msgs}}
	}
	recordDAG("validate", nil)
	return DAGCheck{
		Validation: dag.Validation{IsValid: true, Errors: []string{}},
		Batches:    a.Batches,
		Mermaid:    dag.Mermaid(a.Nodes, a.Edges, batches),
	}
}

// SaveDAG creates the artifact when id is empty and replaces it otherwise.
func (s *Service) SaveDAG(ctx context.Context, user, id string, in dag.Input) (out repository.Artifact, err error) {
	defer func() { recordDAG("save", err) }()

	a, _, err := build(in)
	if err != nil {
		return repository.Artifact{}, err
	}
	a.ID = id
	a.UserGUID = user
	saved, err := s.store.Save(ctx, a)
	if err != nil {
		return repository.Artifact{}, err
	}
	s.logger.Info(ctx, "DAG saved",
		logger.String("id", saved.ID),
		logger.String("title", saved.Title),
		logger.Int("nodes", saved.ArtifactSize.Nodes),
		logger.Int("batches", saved.ArtifactSize.Batches),
	)
	return saved, nil
}

// ListDAGs returns the user's artifacts, newest first.
func (s *Service) ListDAGs(ctx context.Context, user string) ([]repository.Summary, error) {
	return s.store.List(ctx, user)
}

// GetDAG returns one of the user's artifacts.
func (s *Service) GetDAG(ctx context.Context, user, id string) (repository.Artifact, error) {
	return s.store.Get(ctx, user, id)
}

// DeleteDAG removes one of the user's artifacts.
func (s *Service) DeleteDAG(ctx context.Context, user, id string) (err error) {
	defer func() { recordDAG("delete", err) }()
	return s.store.Delete(ctx, user, id)
}

// CloneDAG copies an artifact under a free "<title> - copy N" title with
// a document generated for the new title.
func (s *Service) CloneDAG(ctx context.Context, user, id string) (out repository.Artifact, err error) {
	defer func() { recordDAG("clone", err) }()

	return s.store.Clone(ctx, user, id, func(cp *repository.Artifact) error {
		batches, err := dag.TopologicalBatches(cp.Nodes, cp.Edges)
		if err != nil {
			return err
		}
		doc, err := dag.Document(cp.Title, cp.Nodes, cp.Edges, batches)
		if err != nil {
			return fmt.Errorf("generate document: %w", err)
		}
		cp.Document = doc
		cp.Batches = dag.BatchIDs(batches)
		return nil
	})
}

func bundleFiles(doc string) []bundle.File {
	files := dag.DeploymentFiles(doc)
	out := make([]bundle.File, 0, len(files))
	for _, f := range files {
		out = append(out, bundle.File{Name: f.Name, Data: f.Data})
	}
	return out
}

// DownloadDAG exports an artifact as a zip of its deployment files plus
// metadata.json.
func (s *Service) DownloadDAG(ctx context.Context, user, id string) (out Download, err error) {
	defer func() { recordDAG("download", err) }()

	a, err := s.store.Get(ctx, user, id)
	if err != nil {
		return Download{}, err
	}
	meta, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return Download{}, fmt.Errorf("encode metadata: %w", err)
	}
	files := append(bundleFiles(a.Document), bundle.File{Name: metadataFile, Data: meta})

	var buf bytes.Buffer
	if err := bundle.WriteZip(&buf, files); err != nil {
		return Download{}, err
	}
	return Download{Filename: "dag_execution_" + a.ID + ".zip", Data: buf.Bytes()}, nil
}

// PublishDAG deploys a saved artifact as new content owned by the caller
// and waits for the deploy task to finish.
func (s *Service) PublishDAG(ctx context.Context, caller Caller, id string) (out Publication, err error) {
	defer func() { recordDAG("publish", err) }()

	c, err := s.client(ctx, caller)
	if err != nil {
		return Publication{}, err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return Publication{}, err
	}
	a, err := s.store.Get(ctx, me.GUID, id)
	if err != nil {
		return Publication{}, err
	}

	files := bundleFiles(a.Document)
	archive, err := bundle.Deployable(bundle.QuartoManifest(dag.DocumentFile, dag.RequirementsFile, files), files)
	if err != nil {
		return Publication{}, err
	}

	item, err := c.CreateContent(ctx, ContentName(a.Title, a.ID), a.Title)
	if err != nil {
		return Publication{}, err
	}
	b, err := c.UploadBundle(ctx, item.GUID, bytes.NewReader(archive))
	if err != nil {
		return Publication{}, err
	}
	taskID, err := c.Deploy(ctx, item.GUID, b.ID)
	if err != nil {
		return Publication{}, err
	}
	s.logger.Info(ctx, "DAG deploying",
		logger.String("id", a.ID),
		logger.String("content", item.GUID),
		logger.String("task", taskID),
	)

	if err := s.awaitTask(ctx, c, taskID); err != nil {
		return Publication{}, err
	}
	return Publication{
		ArtifactID:   a.ID,
		ContentGUID:  item.GUID,
		BundleID:     b.ID,
		TaskID:       taskID,
		ContentURL:   item.ContentURL,
		DashboardURL: item.DashboardURL,
	}, nil
}

func (s *Service) awaitTask(ctx context.Context, c *connect.Client, taskID string) error {
	next := 0
	var output []string
	err := poll.Until(ctx, s.deployPollAttempts, s.deployPollInterval, func(ctx context.Context) (bool, error) {
		t, err := c.GetTask(ctx, taskID, next)
		if err != nil {
			return false, err
		}
		output = append(output, t.Output...)
		next = t.Last
		if !t.Finished {
			return false, nil
		}
		if t.Code != 0 || t.Error != "" {
			return false, &DeployError{TaskID: taskID, Code: t.Code, Message: t.Error, Output: output}
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("await deploy task %s: %w", taskID, err)
	}
	return nil
}

// ContentName derives a platform content name from a DAG title: lower
// case, runs of other characters collapsed to "-", suffixed with the
// start of the artifact id so republishing stays unique.
func ContentName(title, id string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = untitledDAGName
	}
	suffix := id
	if len(suffix) > contentNameIDLen {
		suffix = suffix[:contentNameIDLen]
	}
	if suffix != "" {
		if len(name) > maxContentName-len(suffix)-1 {
			name = strings.TrimRight(name[:maxContentName-len(suffix)-1], "-")
		}
		name += "-" + suffix
	}
	for len(name) < minContentName {
		name += "-"
	}
	return name
}

// SearchContent runs a platform content search for the DAG palette.
func (s *Service) SearchContent(ctx context.Context, c Caller, query string) ([]dag.SearchHit, error) {
	cl, err := s.client(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := cl.SearchContent(ctx, query, searchPageSize)
	if err != nil {
		return nil, err
	}
	return dag.SearchHits(res.Results), nil
}
