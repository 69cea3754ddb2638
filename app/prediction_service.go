package app

import (
	"context"
	"fmt"

	"firecarbon/domain/posterior"
	"firecarbon/domain/soil"
	"firecarbon/internal"
	"firecarbon/internal/design"
	"firecarbon/internal/predict"
	"firecarbon/ports"
)

// PredictionService draws posterior predictive samples for every cell of a
// fitted variant's factor grid.
type PredictionService struct {
	artifacts ports.ArtifactRepository
	rngPort   ports.RNGPort
	logger    *internal.Logger
}

// PredictRequest asks for predictions from a fit.
type PredictRequest struct {
	Fit *FitResult
	// Observations supply covariate means for each grid cell.
	Observations []soil.Observation
	// Factors restricts the grid; empty means every factor in the design.
	Factors []string
	Seed    uint64
}

// PredictResult holds the predictive draws and their per-case summary.
type PredictResult struct {
	Variant     string                  `json:"variant"`
	Predictions *posterior.Predictions  `json:"-"`
	Summary     []predict.CaseSummary   `json:"summary"`
	Artifact    *ports.ArtifactMetadata `json:"artifact"`
}

// NewPredictionService creates a prediction service
func NewPredictionService(artifacts ports.ArtifactRepository, rngPort ports.RNGPort, logger *internal.Logger) *PredictionService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PredictionService{
		artifacts: artifacts,
		rngPort:   rngPort,
		logger:    logger,
	}
}

// Predict builds the grid, generates one predictive draw per posterior
// sample and case, and saves the draws.
func (s *PredictionService) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	fit := req.Fit
	if fit == nil || fit.Samples == nil || fit.Design == nil {
		return nil, fmt.Errorf("predict: no fitted posterior")
	}
	d := fit.Design

	cases, err := predict.Grid(design.RowsOf(req.Observations), predict.Factors(d, req.Factors...), predict.Covariates(d))
	if err != nil {
		return nil, fmt.Errorf("building prediction grid for %s: %w", fit.Variant, err)
	}

	rng, err := s.rngPort.Stream(ctx, "predict/"+fit.Variant, req.Seed)
	if err != nil {
		return nil, err
	}
	p, err := predict.Predict(ctx, fit.Samples, d, cases, rng)
	if err != nil {
		return nil, fmt.Errorf("predicting %s: %w", fit.Variant, err)
	}
	s.logger.Info("%s: %d cases x %d draws", fit.Variant, len(cases), fit.Samples.Rows())

	meta, err := s.artifacts.SavePredictions(ctx, PredictionNamespace(fit.Variant), req.Seed, p)
	if err != nil {
		return nil, fmt.Errorf("saving %s predictions: %w", fit.Variant, err)
	}

	return &PredictResult{
		Variant:     fit.Variant,
		Predictions: p,
		Summary:     predict.Summarise(p),
		Artifact:    meta,
	}, nil
}

// LoadLatest summarises the most recent saved predictions of a variant.
func (s *PredictionService) LoadLatest(ctx context.Context, variant string) (*PredictResult, error) {
	name, err := s.artifacts.Latest(ctx, PredictionNamespace(variant))
	if err != nil {
		return nil, err
	}
	p, meta, err := s.artifacts.LoadPredictions(ctx, name)
	if err != nil {
		return nil, err
	}
	return &PredictResult{
		Variant:     variant,
		Predictions: p,
		Summary:     predict.Summarise(p),
		Artifact:    meta,
	}, nil
}
