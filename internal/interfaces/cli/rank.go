package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/MorphoScreen/internal/analytics/ranking"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

type rankOptions struct {
	inputPath  string
	outputPath string
	strategy   string
	onWeight   float64
	offWeight  float64
}

func newRankCommand(root *RootOptions) *cobra.Command {
	opts := &rankOptions{}

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Re-rank an existing scores CSV under a different strategy",
		Long: "Rank reads the compound scores of a previous run from its ranking CSV\n" +
			"and re-orders them under the requested strategy without re-running the\n" +
			"pipeline. Exclusions are preserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rerank(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.inputPath, "input", "", "ranking CSV written by a previous run (required)")
	f.StringVarP(&opts.outputPath, "output", "o", "", "re-ranked CSV destination (default: stdout)")
	f.StringVar(&opts.strategy, "strategy", "", "ranking strategy (weighted_sum|rank_product|pareto)")
	f.Float64Var(&opts.onWeight, "on-weight", 0, "override pipeline.on_weight")
	f.Float64Var(&opts.offWeight, "off-weight", 0, "override pipeline.off_weight")

	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func rerank(cmd *cobra.Command, root *RootOptions, opts *rankOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, err := newCLILogger(root)
	if err != nil {
		return err
	}

	name := cfg.Pipeline.RankStrategy
	if opts.strategy != "" {
		name = opts.strategy
	}
	onWeight, offWeight := cfg.Pipeline.OnWeight, cfg.Pipeline.OffWeight
	if cmd.Flags().Changed("on-weight") {
		onWeight = opts.onWeight
	}
	if cmd.Flags().Changed("off-weight") {
		offWeight = opts.offWeight
	}
	strategy, err := ranking.NewStrategy(name, onWeight, offWeight)
	if err != nil {
		return err
	}

	file, err := os.Open(opts.inputPath)
	if err != nil {
		return fmt.Errorf("open scores %q: %w", opts.inputPath, err)
	}
	defer file.Close()

	scores, err := screen.ReadRankingCSV(file)
	if err != nil {
		return err
	}
	ranked, err := ranking.NewRanker(strategy, logger.Named("ranking")).Rank(scores)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.outputPath != "" {
		dest, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("create output %q: %w", opts.outputPath, err)
		}
		defer dest.Close()
		out = dest
	}
	reranked := &screen.Ranking{RunID: common.NewID(), Strategy: strategy.Name(), Entries: ranked}
	return reranked.WriteCSV(out)
}
