package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/pipeline"
)

func newHuntCommand() *cobra.Command {
	var (
		fromFlag    string
		toFlag      string
		lastFlag    time.Duration
		sourcesFlag []string
		runIDFlag   string
	)

	cmd := &cobra.Command{
		Use:   "hunt",
		Short: "Run one correlation pass over a time range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			from, to, err := resolveRange(fromFlag, toFlag, lastFlag)
			if err != nil {
				return err
			}

			var sources []model.SourceType
			for _, s := range sourcesFlag {
				src := model.SourceType(s)
				if !src.IsValid() {
					return fmt.Errorf("unknown source type %q", s)
				}
				sources = append(sources, src)
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, incidents, err := a.runner.Hunt(ctx, pipeline.HuntRequest{
				RunID:   runIDFlag,
				From:    from,
				To:      to,
				Sources: sources,
			})
			if report != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(struct {
					Report    *model.RunReport           `json:"report"`
					Incidents []*model.IncidentCandidate `json:"incidents"`
				}{report, incidents})
			}
			return err
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&toFlag, "to", "", "range end (RFC3339, default now)")
	cmd.Flags().DurationVar(&lastFlag, "last", 0, "hunt the trailing window instead of --from/--to")
	cmd.Flags().StringSliceVar(&sourcesFlag, "sources", nil, "source families to query (default all)")
	cmd.Flags().StringVar(&runIDFlag, "run-id", "", "resume a previous run's checkpoints")
	return cmd
}

// resolveRange turns the flag combinations into a concrete UTC interval.
func resolveRange(fromFlag, toFlag string, last time.Duration) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	if last > 0 {
		if fromFlag != "" || toFlag != "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--last cannot be combined with --from/--to")
		}
		return now.Add(-last), now, nil
	}
	if fromFlag == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("either --last or --from is required")
	}

	from, err := time.Parse(time.RFC3339, fromFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be RFC3339: %w", err)
	}
	to := now
	if toFlag != "" {
		to, err = time.Parse(time.RFC3339, toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to must be RFC3339: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return from.UTC(), to.UTC(), nil
}
