package ports

import (
	"context"

	"firecarbon/domain/soil"
)

// ObservationSource yields the field observations a model is fitted to.
type ObservationSource interface {
	LoadObservations(ctx context.Context) ([]soil.Observation, error)
}

// DigestSource yields raw digest replicate rows from laboratory workbooks.
type DigestSource interface {
	LoadDigests(ctx context.Context) ([]soil.DigestRow, error)
}
