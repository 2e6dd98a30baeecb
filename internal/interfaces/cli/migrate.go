package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/MorphoScreen/internal/infrastructure/database/postgres"
)

func newMigrateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger, err := newCLILogger(root)
			if err != nil {
				return err
			}
			return postgres.Migrate(cfg.Database, logger.Named("migrate"))
		},
	}
}
