package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/carelane/medassign/internal/app"
	"github.com/carelane/medassign/pkg/config"
	"github.com/carelane/medassign/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "medassign",
		Short:         "Case assignment scheduling engine",
		Long:          "medassign supervises pending case assignments: it expires timed-out offers, sends response reminders, and requests reassignments.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newExpireCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the periodic sweeps until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			engine.Scheduler.Start(cmd.Context())
			<-cmd.Context().Done()
			engine.Scheduler.Stop()
			return nil
		},
	}
}

// buildEngine loads configuration and assembles the engine for one-shot
// commands.
func buildEngine(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      observability.LogFormat(cfg.LogFormat),
		Output:      os.Stderr,
		ServiceName: "medassign",
	})

	return app.New(ctx, cfg, logger)
}

func newSweepCmd() *cobra.Command {
	var expirationOnly, remindersOnly bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the sweeps once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			if !remindersOnly {
				if err := engine.Expiration.Run(cmd.Context()); err != nil {
					return err
				}
				stats := engine.Expiration.Stats()
				fmt.Printf("expiration: processed=%d expired=%d escalated=%d reassignments=%d failures=%d\n",
					stats.Processed, stats.Expired, stats.Escalated, stats.ReassignmentsRequested, stats.Failures)
			}
			if !expirationOnly {
				if err := engine.Reminder.Run(cmd.Context()); err != nil {
					return err
				}
				stats := engine.Reminder.Stats()
				fmt.Printf("reminders: processed=%d sent=%d failures=%d\n",
					stats.Processed, stats.RemindersSent, stats.Failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&expirationOnly, "expiration-only", false, "run only the expiration sweep")
	cmd.Flags().BoolVar(&remindersOnly, "reminders-only", false, "run only the reminder sweep")
	return cmd
}

func newExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire <assignment-id>",
		Short: "Force-expire a pending assignment and release its case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid assignment id: %w", err)
			}

			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.ExpireAssignment.Handle(cmd.Context(), assignmentID); err != nil {
				return err
			}
			fmt.Println("assignment expired")
			return nil
		},
	}
}
