package ports

import (
	"context"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
)

// ArtifactRepository persists posterior and prediction matrices under a
// namespace (e.g. posterior-total). Every save creates a new timestamped
// artifact; nothing is overwritten.
type ArtifactRepository interface {
	SavePosterior(ctx context.Context, namespace string, seed uint64, m *posterior.Matrix) (*ArtifactMetadata, error)
	LoadPosterior(ctx context.Context, name string) (*posterior.Matrix, *ArtifactMetadata, error)

	SavePredictions(ctx context.Context, namespace string, seed uint64, p *posterior.Predictions) (*ArtifactMetadata, error)
	LoadPredictions(ctx context.Context, name string) (*posterior.Predictions, *ArtifactMetadata, error)

	// Latest returns the name of the most recently written artifact in a
	// namespace, or a DataLoadError when there is none.
	Latest(ctx context.Context, namespace string) (string, error)
	List(ctx context.Context, namespace string) ([]*ArtifactMetadata, error)
}

// ArtifactMetadata describes a stored artifact without its payload.
type ArtifactMetadata struct {
	ID        core.ArtifactID   `json:"id"`
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Kind      core.ArtifactKind `json:"kind"`
	CreatedAt core.Timestamp    `json:"created_at"`
	Seed      uint64            `json:"seed"`
	Rows      int               `json:"rows"`
	Columns   []string          `json:"columns"`
	Partial   bool              `json:"partial,omitempty"`
}
