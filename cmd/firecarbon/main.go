package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"firecarbon/adapters/artifacts"
	"firecarbon/adapters/csvdata"
	"firecarbon/adapters/excel"
	"firecarbon/adapters/rng"
	"firecarbon/app"
	"firecarbon/domain/soil"
	"firecarbon/internal"
	"firecarbon/internal/config"
	"firecarbon/internal/testkit"

	"github.com/spf13/cobra"
)

// overrides holds the flags shared by the model commands. Flags left unset
// keep the environment configuration.
type overrides struct {
	variants     []string
	burnIn       int
	iterations   int
	thin         int
	seed         uint64
	recompute    bool
	artifactDir  string
	outputDir    string
	observations string
	digests      string
	artifact     string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "firecarbon",
		Short: "Bayesian variable selection for post-fire soil carbon",
		Long: `Fit spike-and-slab regression models of soil carbon against burn severity,
depth and microsite, summarise variable importance and draw posterior
predictive samples.

Configuration is read from the environment (and .env) with FIRECARBON_*
variables; flags override it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newSummarizeCmd(),
		newPredictCmd(),
		newDigestsCmd(),
		newSimulateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command, o *overrides) {
	cmd.Flags().StringSliceVar(&o.variants, "variant", nil, "Model variants to run (default: all in the model file)")
	cmd.Flags().IntVar(&o.burnIn, "burn-in", 0, "Burn-in iterations")
	cmd.Flags().IntVar(&o.iterations, "iterations", 0, "Iterations after burn-in")
	cmd.Flags().IntVar(&o.thin, "thin", 0, "Keep every n-th iteration")
	cmd.Flags().Uint64Var(&o.seed, "seed", 0, "Random seed")
	cmd.Flags().StringVar(&o.artifactDir, "artifact-dir", "", "Directory for posterior and prediction artifacts")
	cmd.Flags().StringVar(&o.outputDir, "output-dir", "", "Directory for CSV reports")
	cmd.Flags().StringVar(&o.observations, "observations", "", "Observation table (.csv or .xlsx)")
	cmd.Flags().StringVar(&o.digests, "digests", "", "Digest workbook (.xlsx)")
}

func newFitCmd() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit model variants and write variable importance tables",
		Long: `Fit every configured model variant, or the ones named with --variant.

Without --recompute the latest saved posterior of each variant is reused.
Interrupting a run saves the samples retained so far.

Example: firecarbon fit --observations samples.csv --digests digests.xlsx --recompute`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd.Context(), cmd, o, false)
		},
	}
	addModelFlags(cmd, &o)
	cmd.Flags().BoolVar(&o.recompute, "recompute", false, "Run the sampler even when a saved posterior exists")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Rewrite variable importance tables from saved posteriors",
		Long: `Load the latest saved posterior of each variant (or --artifact) and write
its variable importance table. The sampler is never run.

Example: firecarbon summarize --variant total`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.recompute = false
			return runFit(cmd.Context(), cmd, o, false)
		},
	}
	addModelFlags(cmd, &o)
	cmd.Flags().StringVar(&o.artifact, "artifact", "", "Posterior artifact file to summarise")
	return cmd
}

func newPredictCmd() *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Draw posterior predictive samples for every factor combination",
		Long: `Fit or load each variant, then draw one predictive sample per posterior
draw for every depth x microsite x severity cell. Draws are saved as
prediction artifacts and summarised to CSV.

Example: firecarbon predict --variant recalcitrant --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd.Context(), cmd, o, true)
		},
	}
	addModelFlags(cmd, &o)
	cmd.Flags().BoolVar(&o.recompute, "recompute", false, "Run the sampler even when a saved posterior exists")
	return cmd
}

func newDigestsCmd() *cobra.Command {
	var sheets []int
	var columns []string

	cmd := &cobra.Command{
		Use:   "digests [workbook]",
		Short: "List the digest replicates found in a laboratory workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".env")
			if err != nil {
				return err
			}
			if len(sheets) > 0 {
				cfg.Digests.Sheets = sheets
			}
			if len(columns) == 3 {
				cfg.Digests.LabelColumn, cfg.Digests.PositionColumn, cfg.Digests.DataColumn = columns[0], columns[1], columns[2]
			} else if len(columns) != 0 {
				return fmt.Errorf("--columns needs label, position and data column letters")
			}

			logger := internal.NewDefaultLogger()
			loader, err := excel.NewDigestLoader(args[0], cfg.Digests.Sheets, cfg.Digests.LabelColumn, cfg.Digests.PositionColumn, cfg.Digests.DataColumn, logger)
			if err != nil {
				return err
			}
			rows, err := loader.LoadDigests(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %-10s %-8s %s\n", "SHEET", "LABEL", "POSITION", "VALUE")
			for _, r := range rows {
				fmt.Printf("%-12s %-10s %-8s %s\n", r.Sheet, r.SampleLabel, r.Position, r.RawValue)
			}
			fmt.Printf("\n%d rows from %d sheets\n", len(rows), len(cfg.Digests.Sheets))
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&sheets, "sheets", nil, "Zero-based sheet indices to read")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Label, position and data column letters")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var seed uint64
	var perCell int
	var dir string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic observation table and digest workbook",
		Long: `Generate synthetic soil carbon data with known depth and severity effects.
Useful for trying the pipeline end to end.

Example: firecarbon simulate --dir ./demo && firecarbon fit --observations ./demo/observations.csv --digests ./demo/digests.xlsx --recompute`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultSoilConfig()
			cfg.Seed = seed
			cfg.SamplesPerCell = perCell
			cfg.Microsites = soil.MicrositeLevels
			g := testkit.NewSoilDataGenerator(cfg)
			obs := g.GenerateObservations()

			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			obsPath := filepath.Join(dir, "observations.csv")
			if err := testkit.WriteObservationsCSV(obsPath, obs); err != nil {
				return err
			}
			wbPath := filepath.Join(dir, "digests.xlsx")
			sheets, err := testkit.WriteDigestWorkbook(wbPath, g.GenerateDigests(obs))
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d observations to %s\n", len(obs), obsPath)
			fmt.Printf("wrote %d digest sheets to %s\n", sheets, wbPath)
			indices := make([]string, sheets)
			for i := range indices {
				indices[i] = strconv.Itoa(i)
			}
			fmt.Printf("read them all with FIRECARBON_DIGEST_SHEETS=%s\n", strings.Join(indices, ","))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&perCell, "per-cell", 6, "Samples per depth x microsite x severity cell")
	cmd.Flags().StringVar(&dir, "dir", ".", "Output directory")
	return cmd
}

func loadConfig(cmd *cobra.Command, o overrides) (*config.Config, error) {
	cfg, err := config.Load(".env")
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, cmd, o); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies the flags set on cmd into cfg. Numeric flags are
// tested with Changed, so an explicit --seed 0 still overrides.
func applyOverrides(cfg *config.Config, cmd *cobra.Command, o overrides) error {
	set := cmd.Flags().Changed
	if set("burn-in") {
		cfg.Sampler.BurnIn = o.burnIn
	}
	if set("iterations") {
		cfg.Sampler.Iterations = o.iterations
	}
	if set("thin") {
		cfg.Sampler.Thin = o.thin
	}
	if set("seed") {
		cfg.Sampler.Seed = o.seed
	}
	if o.recompute {
		cfg.Recompute = true
	}
	if o.artifactDir != "" {
		cfg.Paths.ArtifactDir = o.artifactDir
	}
	if o.outputDir != "" {
		cfg.Paths.OutputDir = o.outputDir
	}
	if o.observations != "" {
		cfg.Paths.Observations = o.observations
	}
	if o.digests != "" {
		cfg.Paths.Digests = o.digests
	}
	return cfg.Sampler.Validate()
}

func runFit(ctx context.Context, cmd *cobra.Command, o overrides, withPredictions bool) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	logger := internal.NewDefaultLogger()

	variants := o.variants
	if len(variants) == 0 {
		variants = cfg.Model.Names()
	}
	if o.artifact != "" && len(variants) != 1 {
		return fmt.Errorf("--artifact needs exactly one --variant")
	}

	data, err := loadData(ctx, cfg, variants, logger)
	if err != nil {
		return err
	}

	store := artifacts.NewFileStore(cfg.Paths.ArtifactDir, logger)
	pcg := rng.NewPCGAdapter()
	models := app.NewModelService(store, pcg, logger)

	reqs := make([]app.FitRequest, 0, len(variants))
	for _, name := range variants {
		spec, err := cfg.Model.Spec(name)
		if err != nil {
			return err
		}
		latent := cfg.Model.Variants[name].Latent
		obs := data.observations
		if latent {
			obs = data.joined
		}
		reqs = append(reqs, app.FitRequest{
			Variant:      name,
			Spec:         spec,
			Observations: obs,
			Latent:       latent,
			Sampler:      cfg.Sampler,
			Recompute:    cfg.Recompute,
			ArtifactName: o.artifact,
		})
	}

	fits, fitErr := app.NewVariantRunner(models, logger).FitAll(ctx, reqs)
	if fitErr != nil && !errors.Is(fitErr, context.Canceled) {
		return fitErr
	}

	var preds []*app.PredictResult
	if withPredictions && fitErr == nil {
		predictions := app.NewPredictionService(store, pcg, logger)
		for i, fit := range fits {
			p, err := predictions.Predict(ctx, app.PredictRequest{
				Fit:          fit,
				Observations: reqs[i].Observations,
				Seed:         cfg.Sampler.Seed,
			})
			if err != nil {
				return err
			}
			preds = append(preds, p)
		}
	}

	written, err := app.WriteReports(cfg.Paths.OutputDir, fits, preds)
	if err != nil {
		return err
	}
	for _, f := range fits {
		if f != nil {
			printFit(f)
		}
	}
	for _, path := range written {
		fmt.Printf("wrote %s\n", path)
	}
	if fitErr != nil {
		return fmt.Errorf("interrupted, partial samples saved to %s: %w", cfg.Paths.ArtifactDir, fitErr)
	}
	return nil
}

type inputs struct {
	observations []soil.Observation
	joined       []soil.Observation
}

// loadData reads the observation table, and the digest workbook when any
// requested variant is latent.
func loadData(ctx context.Context, cfg *config.Config, variants []string, logger *internal.Logger) (*inputs, error) {
	if cfg.Paths.Observations == "" {
		return nil, fmt.Errorf("no observation table: set FIRECARBON_OBSERVATIONS or --observations")
	}
	obs, err := csvdata.NewObservationFile(cfg.Paths.Observations, logger).LoadObservations(ctx)
	if err != nil {
		return nil, err
	}
	in := &inputs{observations: obs}

	needDigests := false
	for _, v := range variants {
		if cfg.Model.Variants[v].Latent {
			needDigests = true
		}
	}
	if !needDigests {
		return in, nil
	}
	if cfg.Paths.Digests == "" {
		return nil, fmt.Errorf("latent variants need a digest workbook: set FIRECARBON_DIGESTS or --digests")
	}
	loader, err := excel.NewDigestLoader(cfg.Paths.Digests, cfg.Digests.Sheets, cfg.Digests.LabelColumn, cfg.Digests.PositionColumn, cfg.Digests.DataColumn, logger)
	if err != nil {
		return nil, err
	}
	digests, err := loader.LoadDigests(ctx)
	if err != nil {
		return nil, err
	}
	joined, report, err := csvdata.JoinDigests(obs, digests, logger)
	if err != nil {
		return nil, err
	}
	if len(report.UnknownLabels) > 0 {
		logger.Warn("digest labels without a sample: %v", report.UnknownLabels)
	}
	in.joined = joined
	return in, nil
}

func printFit(f *app.FitResult) {
	source := "sampled"
	if f.Loaded {
		source = "loaded"
	}
	name := ""
	if f.Artifact != nil {
		name = f.Artifact.Name
	}
	fmt.Printf("\n%s (%s %s, %d samples)\n", f.Variant, source, name, f.Samples.Rows())
	fmt.Printf("%-40s %8s %10s %10s %10s\n", "VARIABLE", "INCL%", "MEAN", "LOWER", "UPPER")
	for _, r := range f.Importance {
		mark := ""
		if r.NonZero {
			mark = " *"
		}
		fmt.Printf("%-40s %8.1f %10.4f %10.4f %10.4f%s\n", r.Variable, r.PercentInclusion, r.MeanIncluded, r.Lower, r.Upper, mark)
	}
}
