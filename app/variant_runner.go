package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"firecarbon/adapters/artifacts"
	"firecarbon/internal"

	"golang.org/x/sync/errgroup"
)

// VariantRunner fits several model variants concurrently. Each variant has
// its own named RNG stream, so results do not depend on scheduling.
type VariantRunner struct {
	models *ModelService
	logger *internal.Logger
}

// NewVariantRunner creates a new variant runner
func NewVariantRunner(models *ModelService, logger *internal.Logger) *VariantRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &VariantRunner{models: models, logger: logger}
}

// FitAll runs every request and returns the results in request order.
// A failing variant does not stop the others; only ctx does. The first
// error is returned alongside every result that was produced.
func (r *VariantRunner) FitAll(ctx context.Context, reqs []FitRequest) ([]*FitResult, error) {
	results := make([]*FitResult, len(reqs))
	var mu sync.Mutex

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			res, err := r.models.Fit(ctx, req)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("variant %s: %w", req.Variant, err)
			}
			r.logger.Info("variant %s done: %d terms, loaded=%v", req.Variant, len(res.Importance), res.Loaded)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// ImportanceFile is the report name of a variant's importance table.
func ImportanceFile(variant string) string {
	return "variable_importance_" + variant + ".csv"
}

// PredictionFile is the report name of a variant's prediction summary.
func PredictionFile(variant string) string {
	return "predictions_" + variant + ".csv"
}

// WriteReports writes the importance table of every fit and the summary of
// every prediction into dir. It returns the written paths.
func WriteReports(dir string, fits []*FitResult, preds []*PredictResult) ([]string, error) {
	var written []string
	for _, f := range fits {
		if f == nil || f.Importance == nil {
			continue
		}
		path := filepath.Join(dir, ImportanceFile(f.Variant))
		if err := artifacts.WriteFile(path, func(w io.Writer) error {
			return artifacts.WriteImportance(w, f.Importance)
		}); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	for _, p := range preds {
		if p == nil {
			continue
		}
		path := filepath.Join(dir, PredictionFile(p.Variant))
		if err := artifacts.WriteFile(path, func(w io.Writer) error {
			return artifacts.WritePredictions(w, p.Summary)
		}); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
