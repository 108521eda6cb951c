// Package repository persists DAG artifacts per user.
package repository

import (
	"context"
	"time"

	"github.com/okian/connect-extensions/internal/domain/dag"
)

// Artifact is a saved DAG together with the document generated for it.
type Artifact struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	UserGUID  string     `json:"user_guid"`
	Timestamp time.Time  `json:"timestamp"`
	Nodes     []dag.Node `json:"nodes"`
	Edges     []dag.Edge `json:"edges"`
	Batches   [][]string `json:"batches"`
	Document  string     `json:"-"`
	ArtifactSize
}

// ArtifactSize holds the element counts of an artifact.
type ArtifactSize struct {
	Nodes   int `json:"nodes_count"`
	Edges   int `json:"edges_count"`
	Batches int `json:"batches_count"`
}

// Summary is the listing row of an artifact.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ArtifactSize
}

// Store provides access to saved DAG artifacts. Every call is scoped to one
// user; artifacts of other users are invisible.
type Store interface {
	// Save creates the artifact when ID is empty and updates it otherwise.
	// Creating a second artifact with the same title (case-insensitive)
	// returns ErrTitleExists; updating an unknown ID returns ErrNotFound.
	Save(ctx context.Context, a Artifact) (Artifact, error)
	// List returns the user's artifacts, most recent first.
	List(ctx context.Context, userGUID string) ([]Summary, error)
	// Get returns one artifact or ErrNotFound.
	Get(ctx context.Context, userGUID, id string) (Artifact, error)
	// Delete removes one artifact or returns ErrNotFound.
	Delete(ctx context.Context, userGUID, id string) error
	// FindByTitle returns the id of the artifact with the given title.
	FindByTitle(ctx context.Context, userGUID, title string) (string, error)
	// Clone copies an artifact under the first free "<title> - copy N"
	// title. prepare, when set, may rewrite the copy before it is saved; an
	// error from it saves nothing.
	Clone(ctx context.Context, userGUID, id string, prepare func(*Artifact) error) (Artifact, error)
	// Close releases the underlying resources.
	Close() error
}
