package consultation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/app"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/pkg/logs"
)

type sweepOptions struct {
	asJSON             bool
	completeInProgress bool
	hoursOverdue       float64
	dryRun             bool
}

func NewSweepCommand() *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report open consultations past their scheduled slot",
		Long: `Scan open consultations and publish an overdue event for every one whose
scheduled date and time has passed. Stored statuses are not changed.

With --complete-in-progress the command instead completes consultations still
in progress more than --hours-overdue hours after their scheduled start.
--dry-run lists them without completing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			slog.SetDefault(logs.New(cfg))

			var svc consultation.Service
			fxApp := fx.New(
				fx.Supply(cfg),
				app.InfraModule,
				app.ServiceModule,
				fx.Populate(&svc),
				fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
			)

			timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := fxApp.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() { _ = fxApp.Stop(context.Background()) }()

			return runSweep(ctx, svc, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the overdue consultations as JSON")
	cmd.Flags().BoolVar(&opts.completeInProgress, "complete-in-progress", false, "Complete in-progress consultations past the threshold")
	cmd.Flags().Float64Var(&opts.hoursOverdue, "hours-overdue", 1, "Hours past the scheduled start before an in-progress consultation is completed")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "List the consultations that would be completed without changing them")

	return cmd
}

func runSweep(ctx context.Context, svc consultation.Service, w io.Writer, opts sweepOptions) error {
	if !opts.completeInProgress {
		if opts.dryRun {
			return fmt.Errorf("--dry-run requires --complete-in-progress")
		}
		items, err := svc.SweepOverdue(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		return printOverdue(w, items, opts.asJSON)
	}

	items, err := svc.CompleteOverdue(ctx, consultation.CompleteOverdueRequest{
		HoursOverdue: opts.hoursOverdue,
		DryRun:       opts.dryRun,
		Actor:        "system:sweep",
	})
	if err != nil {
		return fmt.Errorf("complete overdue failed: %w", err)
	}
	if opts.asJSON {
		return printOverdue(w, items, true)
	}
	verb := "completed"
	if opts.dryRun {
		verb = "would complete"
	}
	fmt.Fprintf(w, "%s %d in-progress consultation(s) over %.1fh\n", verb, len(items), opts.hoursOverdue)
	return printItems(w, items)
}

func printOverdue(w io.Writer, items []consultation.OverdueItem, asJSON bool) error {
	if asJSON {
		if items == nil {
			items = []consultation.OverdueItem{}
		}
		b, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	fmt.Fprintf(w, "%d overdue consultation(s)\n", len(items))
	return printItems(w, items)
}

func printItems(w io.Writer, items []consultation.OverdueItem) error {
	for _, it := range items {
		fmt.Fprintf(w, "  %s  %-24s  %s  %.1fh\n",
			it.ConsultationID, it.Status, it.ScheduledAt.Format(time.RFC3339), it.HoursOverdue)
	}
	return nil
}
