package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/MorphoScreen/internal/application/screening"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// runOptions holds the flags of the run subcommand. Pipeline parameters
// default to the loaded configuration; flags override individual knobs.
type runOptions struct {
	profilePath    string
	groupColumn    string
	compoundColumn string
	referenceGroup string
	controlGroup   string
	outputPath     string
	topHits        int

	alpha        float64
	epsilon      float64
	rankStrategy string
	seed         int64
}

func newRunCommand(root *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the prioritization pipeline locally over a profile CSV",
		Long: "Run loads a single-cell feature profile from a CSV file, partitions the\n" +
			"feature space against the reference and control groups, clusters and scores\n" +
			"every treated compound, and writes the ranked hit list as CSV.",
		Example: `  morphoscreen run --profile plate-007.csv \
    --group-column group --compound-column compound \
    --reference disease --control healthy -o ranking.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.profilePath, "profile", "", "path to the profile CSV (required)")
	f.StringVar(&opts.groupColumn, "group-column", "group", "metadata column holding the population group")
	f.StringVar(&opts.compoundColumn, "compound-column", "compound", "metadata column holding the compound identifier")
	f.StringVar(&opts.referenceGroup, "reference", "", "group label of the diseased reference population (required)")
	f.StringVar(&opts.controlGroup, "control", "", "group label of the healthy control population (required)")
	f.StringVarP(&opts.outputPath, "output", "o", "", "ranking CSV destination (default: stdout)")
	f.IntVar(&opts.topHits, "top", 0, "print only the top N hits to stderr summary (0 = all)")
	f.Float64Var(&opts.alpha, "alpha", 0, "override pipeline.alpha")
	f.Float64Var(&opts.epsilon, "epsilon", 0, "override pipeline.epsilon")
	f.StringVar(&opts.rankStrategy, "rank-strategy", "", "override pipeline.rank_strategy")
	f.Int64Var(&opts.seed, "seed", 0, "override pipeline.seed")

	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("control")
	return cmd
}

func runLocal(cmd *cobra.Command, root *RootOptions, opts *runOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, err := newCLILogger(root)
	if err != nil {
		return err
	}

	params := cfg.Pipeline
	if cmd.Flags().Changed("alpha") {
		params.Alpha = opts.alpha
	}
	if cmd.Flags().Changed("epsilon") {
		params.Epsilon = opts.epsilon
	}
	if opts.rankStrategy != "" {
		params.RankStrategy = opts.rankStrategy
	}
	if cmd.Flags().Changed("seed") {
		params.Seed = opts.seed
	}

	file, err := os.Open(opts.profilePath)
	if err != nil {
		return fmt.Errorf("open profile %q: %w", opts.profilePath, err)
	}
	defer file.Close()

	table, err := profile.ReadCSV(file, []string{opts.groupColumn, opts.compoundColumn})
	if err != nil {
		return err
	}
	logger.Info("profile loaded",
		logging.String("path", opts.profilePath),
		logging.Int("cells", table.NumRows()),
		logging.Int("features", table.NumFeatures()),
	)

	svc := screening.NewService(logger.Named("pipeline"))
	result, err := svc.Run(cmd.Context(), screening.Request{
		Profile:        table,
		GroupColumn:    opts.groupColumn,
		CompoundColumn: opts.compoundColumn,
		ReferenceGroup: opts.referenceGroup,
		ControlGroup:   opts.controlGroup,
		Params:         params,
	})
	if err != nil {
		return err
	}

	ranking := result.Ranking(common.NewID(), params.RankStrategy)
	out := cmd.OutOrStdout()
	if opts.outputPath != "" {
		dest, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("create output %q: %w", opts.outputPath, err)
		}
		defer dest.Close()
		out = dest
	}
	if err := ranking.WriteCSV(out); err != nil {
		return err
	}

	hits := ranking.Hits(len(ranking.Entries))
	if opts.topHits > 0 {
		hits = ranking.Hits(opts.topHits)
	}
	logger.Info("pipeline finished",
		logging.Int("on_features", len(result.Signature.On)),
		logging.Int("off_features", len(result.Signature.Off)),
		logging.Int("ranked", len(hits)),
		logging.Int("excluded", len(result.Excluded)),
		logging.Duration("elapsed", result.Elapsed),
	)
	for compound, reason := range result.Excluded {
		logger.Warn("compound excluded",
			logging.String("compound", string(compound)),
			logging.String("reason", reason),
		)
	}
	return nil
}
