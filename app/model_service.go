package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"firecarbon/adapters/csvdata"
	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
	"firecarbon/domain/soil"
	"firecarbon/internal"
	"firecarbon/internal/design"
	"firecarbon/internal/ssvs"
	"firecarbon/internal/summary"
	"firecarbon/ports"
)

// PosteriorNamespace is the artifact namespace of a variant's samples.
func PosteriorNamespace(variant string) string { return "posterior-" + variant }

// PredictionNamespace is the artifact namespace of a variant's predictions.
func PredictionNamespace(variant string) string { return "prediction-" + variant }

// ModelService fits one model variant or loads its cached posterior.
type ModelService struct {
	artifacts ports.ArtifactRepository
	rngPort   ports.RNGPort
	logger    *internal.Logger
}

// FitRequest defines one variant fit.
type FitRequest struct {
	Variant      string
	Spec         design.Spec
	Observations []soil.Observation
	// Latent fits the replicate model to Observation.Replicates.
	Latent  bool
	Sampler ssvs.Config
	// Recompute runs the sampler even when an artifact exists. Without it
	// the artifact named by ArtifactName, or else the latest one, is used.
	Recompute    bool
	ArtifactName string
}

// FitResult is a fitted (or reloaded) variant.
type FitResult struct {
	Variant     string                       `json:"variant"`
	Design      *design.Design               `json:"-"`
	Samples     *posterior.Matrix            `json:"-"`
	Diagnostics *ssvs.Diagnostics            `json:"diagnostics,omitempty"`
	Artifact    *ports.ArtifactMetadata      `json:"artifact"`
	Loaded      bool                         `json:"loaded"`
	Importance  []summary.VariableImportance `json:"importance"`
	Fingerprint core.Hash                    `json:"fingerprint"`
	RuntimeMs   int64                        `json:"runtime_ms"`
}

// NewModelService creates a model service
func NewModelService(artifacts ports.ArtifactRepository, rngPort ports.RNGPort, logger *internal.Logger) *ModelService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ModelService{
		artifacts: artifacts,
		rngPort:   rngPort,
		logger:    logger,
	}
}

// Fit builds the design, then loads or samples the posterior and extracts
// variable importance. When the sampler is interrupted the partial samples
// are still saved and the context error is returned with the result.
func (s *ModelService) Fit(ctx context.Context, req FitRequest) (*FitResult, error) {
	start := time.Now()
	log := s.logger.WithComponent(req.Variant)

	obs := usable(req.Observations, req.Latent)
	if len(obs) < len(req.Observations) {
		log.Warn("dropped %d observations without a response", len(req.Observations)-len(obs))
	}
	d, err := design.Build(req.Spec, design.RowsOf(obs))
	if err != nil {
		return nil, fmt.Errorf("building design for %s: %w", req.Variant, err)
	}
	log.Info("design %s: %d rows, %d terms", d.Formula.String(), len(obs), len(d.Terms))

	res := &FitResult{
		Variant:     req.Variant,
		Design:      d,
		Fingerprint: fingerprint(req, d),
	}

	var runErr error
	if !req.Recompute {
		if err := s.load(ctx, req, res); err != nil {
			return nil, err
		}
	} else {
		runErr = s.sample(ctx, req, obs, res)
		if res.Samples == nil {
			return nil, runErr
		}
	}

	res.Importance, err = summary.Extract(res.Samples)
	if err != nil {
		if runErr != nil {
			return res, runErr
		}
		return nil, err
	}
	res.RuntimeMs = time.Since(start).Milliseconds()
	return res, runErr
}

func (s *ModelService) load(ctx context.Context, req FitRequest, res *FitResult) error {
	name := req.ArtifactName
	if name == "" {
		latest, err := s.artifacts.Latest(ctx, PosteriorNamespace(req.Variant))
		if err != nil {
			return err
		}
		name = latest
	}
	m, meta, err := s.artifacts.LoadPosterior(ctx, name)
	if err != nil {
		return err
	}
	if err := matchesDesign(m, res.Design); err != nil {
		return fmt.Errorf("artifact %s: %w", name, err)
	}
	if m.Partial {
		s.logger.Warn("artifact %s holds a partial chain (%d samples)", name, m.Rows())
	}
	s.logger.Info("loaded %s posterior from %s (%d samples)", req.Variant, name, m.Rows())
	res.Samples = m
	res.Artifact = meta
	res.Loaded = true
	return nil
}

func (s *ModelService) sample(ctx context.Context, req FitRequest, obs []soil.Observation, res *FitResult) error {
	data := ssvs.FromDesign(res.Design)
	if req.Latent {
		data.Replicates = make([][]float64, len(obs))
		data.SampleIDs = make([]string, len(obs))
		for i, o := range obs {
			data.Replicates[i] = o.ObservedReplicates()
			data.SampleIDs[i] = o.SampleID.String()
		}
	} else {
		data.Response = make([]float64, len(obs))
		for i, o := range obs {
			data.Response[i] = o.Response
		}
	}

	rng, err := s.rngPort.Stream(ctx, "ssvs/"+req.Variant, req.Sampler.Seed)
	if err != nil {
		return err
	}
	sampler, err := ssvs.NewSampler(req.Sampler, data, rng, s.logger.WithComponent(req.Variant))
	if err != nil {
		return fmt.Errorf("configuring sampler for %s: %w", req.Variant, err)
	}

	out, runErr := sampler.Run(ctx)
	if out == nil {
		return runErr
	}
	res.Samples = out.Samples
	res.Diagnostics = &out.Diagnostics

	if out.Samples.Rows() == 0 {
		return runErr
	}
	// a cancelled ctx must not stop the partial chain from being saved
	saveCtx := ctx
	if runErr != nil {
		saveCtx = context.WithoutCancel(ctx)
	}
	meta, err := s.artifacts.SavePosterior(saveCtx, PosteriorNamespace(req.Variant), req.Sampler.Seed, out.Samples)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("saving %s posterior: %w", req.Variant, err))
	}
	res.Artifact = meta
	return runErr
}

// matchesDesign checks a cached posterior carries exactly the design's terms.
func matchesDesign(m *posterior.Matrix, d *design.Design) error {
	terms := m.Terms()
	names := d.Names()
	if len(terms) != len(names) {
		return core.NewConfigurationError("posterior has %d terms, design has %d", len(terms), len(names))
	}
	for i := range names {
		if terms[i] != names[i] {
			return core.NewConfigurationError("posterior term %q does not match design term %q", terms[i], names[i])
		}
	}
	return nil
}

func usable(obs []soil.Observation, latent bool) []soil.Observation {
	if !latent {
		return csvdata.Complete(obs)
	}
	out := make([]soil.Observation, 0, len(obs))
	for _, o := range obs {
		if len(o.ObservedReplicates()) > 0 {
			out = append(out, o)
		}
	}
	return out
}

func fingerprint(req FitRequest, d *design.Design) core.Hash {
	rows, _ := d.X.Dims()
	return core.HashFields(map[string]string{
		"variant":    req.Variant,
		"formula":    d.Formula.String(),
		"latent":     strconv.FormatBool(req.Latent),
		"burn_in":    strconv.Itoa(req.Sampler.BurnIn),
		"iterations": strconv.Itoa(req.Sampler.Iterations),
		"thin":       strconv.Itoa(req.Sampler.Thin),
		"seed":       strconv.FormatUint(req.Sampler.Seed, 10),
		"rows":       strconv.Itoa(rows),
	})
}
