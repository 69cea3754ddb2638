package testkit

import (
	"context"
	"math/rand/v2"
	"sync"

	"firecarbon/adapters/artifacts"
	"firecarbon/adapters/rng"
	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
	"firecarbon/ports"

	"gonum.org/v1/gonum/mat"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	artifacts *InMemoryArtifactRepository
	rng       *RNGAdapter
}

// NewTestKit creates a new test kit with an empty artifact repository
func NewTestKit() *TestKit {
	return &TestKit{
		artifacts: NewInMemoryArtifactRepository(),
		rng:       &RNGAdapter{},
	}
}

// ArtifactRepository returns the shared in-memory repository
func (t *TestKit) ArtifactRepository() *InMemoryArtifactRepository {
	return t.artifacts
}

// RNGAdapter returns an RNG adapter that records the streams requested
func (t *TestKit) RNGAdapter() *RNGAdapter {
	return t.rng
}

// Soil returns a synthetic soil data generator with the default layout
func (t *TestKit) Soil(seed uint64) *SoilDataGenerator {
	cfg := DefaultSoilConfig()
	cfg.Seed = seed
	return NewSoilDataGenerator(cfg)
}

// RNGAdapter implements ports.RNGPort for testing. Streams are the same
// as the production PCG adapter so results match across the two.
type RNGAdapter struct {
	mu      sync.Mutex
	streams []string
}

var _ ports.RNGPort = (*RNGAdapter)(nil)

// Stream creates a deterministic RNG stream and records its name
func (r *RNGAdapter) Stream(ctx context.Context, name string, seed uint64) (*rand.Rand, error) {
	r.mu.Lock()
	r.streams = append(r.streams, name)
	r.mu.Unlock()
	return rng.NewPCGAdapter().Stream(ctx, name, seed)
}

// Streams lists the requested stream names in request order
func (r *RNGAdapter) Streams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.streams...)
}

type storedArtifact struct {
	meta      ports.ArtifactMetadata
	samples   *posterior.Matrix
	predicted *posterior.Predictions
}

// InMemoryArtifactRepository implements ports.ArtifactRepository in memory.
// Latest is the most recently saved artifact of a namespace.
type InMemoryArtifactRepository struct {
	mu        sync.RWMutex
	artifacts map[string]storedArtifact
	order     map[string][]string
}

var _ ports.ArtifactRepository = (*InMemoryArtifactRepository)(nil)

func NewInMemoryArtifactRepository() *InMemoryArtifactRepository {
	return &InMemoryArtifactRepository{
		artifacts: make(map[string]storedArtifact),
		order:     make(map[string][]string),
	}
}

func (s *InMemoryArtifactRepository) store(namespace string, a storedArtifact) *ports.ArtifactMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := core.NewID()
	a.meta.ID = core.ArtifactID(id)
	a.meta.Namespace = namespace
	a.meta.CreatedAt = core.Now()
	a.meta.Name = artifacts.FileName(namespace, a.meta.CreatedAt, id)
	s.artifacts[a.meta.Name] = a
	s.order[namespace] = append(s.order[namespace], a.meta.Name)

	meta := a.meta
	return &meta
}

func (s *InMemoryArtifactRepository) SavePosterior(ctx context.Context, namespace string, seed uint64, m *posterior.Matrix) (*ports.ArtifactMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data *mat.Dense
	if m.Data != nil {
		data = mat.DenseCopyOf(m.Data)
	}
	cp := posterior.FromDense(append([]string(nil), m.Columns...), data, m.Partial)
	return s.store(namespace, storedArtifact{
		meta:    ports.ArtifactMetadata{Kind: core.ArtifactPosterior, Seed: seed, Rows: m.Rows(), Columns: cp.Columns, Partial: m.Partial},
		samples: cp,
	}), nil
}

func (s *InMemoryArtifactRepository) SavePredictions(ctx context.Context, namespace string, seed uint64, p *posterior.Predictions) (*ports.ArtifactMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, _ := p.Data.Dims()
	cp := &posterior.Predictions{Cases: append([]string(nil), p.Cases...), Data: mat.DenseCopyOf(p.Data)}
	return s.store(namespace, storedArtifact{
		meta:      ports.ArtifactMetadata{Kind: core.ArtifactPrediction, Seed: seed, Rows: rows},
		predicted: cp,
	}), nil
}

func (s *InMemoryArtifactRepository) get(name string, kind core.ArtifactKind) (storedArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	if !ok || a.meta.Kind != kind {
		return storedArtifact{}, core.NewArtifactNotFoundError("memory", name)
	}
	return a, nil
}

func (s *InMemoryArtifactRepository) LoadPosterior(ctx context.Context, name string) (*posterior.Matrix, *ports.ArtifactMetadata, error) {
	a, err := s.get(name, core.ArtifactPosterior)
	if err != nil {
		return nil, nil, err
	}
	meta := a.meta
	return a.samples, &meta, nil
}

func (s *InMemoryArtifactRepository) LoadPredictions(ctx context.Context, name string) (*posterior.Predictions, *ports.ArtifactMetadata, error) {
	a, err := s.get(name, core.ArtifactPrediction)
	if err != nil {
		return nil, nil, err
	}
	meta := a.meta
	return a.predicted, &meta, nil
}

func (s *InMemoryArtifactRepository) Latest(ctx context.Context, namespace string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.order[namespace]
	if len(names) == 0 {
		return "", core.NewArtifactNotFoundError("memory", artifacts.Pattern(namespace))
	}
	return names[len(names)-1], nil
}

func (s *InMemoryArtifactRepository) List(ctx context.Context, namespace string) ([]*ports.ArtifactMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ports.ArtifactMetadata, 0, len(s.order[namespace]))
	for _, name := range s.order[namespace] {
		meta := s.artifacts[name].meta
		out = append(out, &meta)
	}
	return out, nil
}

// Count returns the number of artifacts saved under a namespace.
func (s *InMemoryArtifactRepository) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[namespace])
}
