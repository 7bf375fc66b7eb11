package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/orderflow-reconciler/internal/config"
	"github.com/imrishuroy/orderflow-reconciler/internal/handlers"
	"github.com/imrishuroy/orderflow-reconciler/internal/reconcile"
	"github.com/imrishuroy/orderflow-reconciler/internal/scheduler"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "reconciler",
		Short:         "Order reconciliation worker: payment settlement, abandonment expiry, delivery",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(lambdaCmd())
	rootCmd.SetArgs(defaultArgs(os.Args[1:], os.Getenv))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultArgs selects the lambda subcommand when the Lambda runtime starts
// the binary as a provided.al2023 bootstrap with no arguments.
func defaultArgs(args []string, getenv func(string) string) []string {
	if len(args) == 0 && getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return []string{"lambda"}
	}
	return args
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile forever, sleeping POLL_INTERVAL_SECONDS between cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, rec, err := setup(ctx)
			if err != nil {
				return err
			}
			sched := scheduler.New(rec, cfg.PollInterval(), cfg.Logger)

			var srv *http.Server
			if cfg.HealthAddr != "" {
				srv = &http.Server{
					Addr:              cfg.HealthAddr,
					Handler:           handlers.NewRouter(sched, cfg.Logger),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					cfg.Logger.WithField("addr", cfg.HealthAddr).Info("health server listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						cfg.Logger.WithError(err).Error("health server stopped")
					}
				}()
			}

			err = sched.Run(ctx)

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if serr := srv.Shutdown(shutdownCtx); serr != nil {
					cfg.Logger.WithError(serr).Warn("health server shutdown")
				}
			}
			return err
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single reconciliation cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rec, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			// per-order and listing failures are reported in the logs, not the exit code
			rec.RunCycle(cmd.Context())
			return nil
		},
	}
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve AWS Lambda invocations, one cycle per scheduled event",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rec, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			lambda.Start(scheduledHandler(rec, cfg))
			return nil
		},
	}
}

type cycleRunner interface {
	RunCycle(ctx context.Context) reconcile.CycleReport
}

// scheduledHandler runs one cycle per EventBridge schedule tick. The invocation fails when a
// pass could not list its batch so the failure shows up in the function's error metrics.
func scheduledHandler(rec cycleRunner, cfg config.Config) func(context.Context, events.CloudWatchEvent) (reconcile.CycleReport, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (reconcile.CycleReport, error) {
		cfg.Logger.WithFields(logrus.Fields{
			"event_id": ev.ID,
			"source":   ev.Source,
		}).Debug("scheduled invocation")

		rep := rec.RunCycle(ctx)
		var errs []error
		for _, p := range rep.Passes {
			if p.Error != "" {
				errs = append(errs, fmt.Errorf("%s pass: %s", p.Pass, p.Error))
			}
		}
		return rep, errors.Join(errs...)
	}
}
