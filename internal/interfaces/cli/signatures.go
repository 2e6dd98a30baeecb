package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/MorphoScreen/internal/analytics/signature"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

type signaturesOptions struct {
	profilePath    string
	groupColumn    string
	compoundColumn string
	referenceGroup string
	controlGroup   string
	alpha          float64
	weighting      string
}

func newSignaturesCommand(root *RootOptions) *cobra.Command {
	opts := &signaturesOptions{}

	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "Print the on/off feature partition for a profile CSV",
		Long: "Signatures runs only the partitioning stage: every feature is tested\n" +
			"between the reference and control groups and assigned to the \"on\" set\n" +
			"(significantly different, p < alpha) or the \"off\" set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSignatures(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.profilePath, "profile", "", "path to the profile CSV (required)")
	f.StringVar(&opts.groupColumn, "group-column", "group", "metadata column holding the population group")
	f.StringVar(&opts.compoundColumn, "compound-column", "compound", "metadata column holding the compound identifier")
	f.StringVar(&opts.referenceGroup, "reference", "", "group label of the diseased reference population (required)")
	f.StringVar(&opts.controlGroup, "control", "", "group label of the healthy control population (required)")
	f.Float64Var(&opts.alpha, "alpha", 0, "override pipeline.alpha")
	f.StringVar(&opts.weighting, "weighting", "", "override pipeline.weighting (uniform|tail)")

	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("control")
	return cmd
}

func printSignatures(cmd *cobra.Command, root *RootOptions, opts *signaturesOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, err := newCLILogger(root)
	if err != nil {
		return err
	}

	params := signature.Params{
		Alpha:      cfg.Pipeline.Alpha,
		Weighting:  signature.Weighting(cfg.Pipeline.Weighting),
		MinSamples: cfg.Pipeline.MinTestSamples,
	}
	if cmd.Flags().Changed("alpha") {
		params.Alpha = opts.alpha
	}
	if opts.weighting != "" {
		params.Weighting = signature.Weighting(opts.weighting)
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
	reference, err := table.SelectByMeta(opts.groupColumn, opts.referenceGroup)
	if err != nil {
		return err
	}
	control, err := table.SelectByMeta(opts.groupColumn, opts.controlGroup)
	if err != nil {
		return err
	}
	if reference.NumRows() == 0 || control.NumRows() == 0 {
		return errors.Newf(errors.ErrCodeGroupNotFound,
			"reference %q or control %q has no rows in column %q",
			opts.referenceGroup, opts.controlGroup, opts.groupColumn)
	}

	sig, err := signature.NewPartitioner(logger.Named("signature")).Partition(cmd.Context(), reference, control, params)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(cmd.OutOrStdout())
	if err := cw.Write([]string{"feature", "ks_stat", "p_value", "set"}); err != nil {
		return err
	}
	for _, feature := range append(append([]string{}, sig.On...), sig.Off...) {
		stat := sig.Stats[feature]
		set := "off"
		if stat.OnSignature {
			set = "on"
		}
		if err := cw.Write([]string{
			feature,
			strconv.FormatFloat(stat.KSStat, 'g', -1, 64),
			strconv.FormatFloat(stat.PValue, 'g', -1, 64),
			set,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
