package cli

import (
	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/repository"
)

func newMigrateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply incident repository schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
			return repository.Migrate(cfg.Database.Postgres, path, log)
		},
	}

	cmd.Flags().StringVar(&path, "path", "migrations", "migrations directory")
	return cmd
}
