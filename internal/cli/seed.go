package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/internal/seeder"
)

func newSeedCommand() *cobra.Command {
	var (
		count  int
		window time.Duration
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Index synthetic records into the log store for local runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s := seeder.New(a.client, seed, a.log)
			return s.Seed(ctx, count, window)
		},
	}

	cmd.Flags().IntVar(&count, "count", 200, "documents per source family")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "spread documents over the trailing window")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "generator seed for reproducible data")
	return cmd
}
