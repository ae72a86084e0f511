package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/apflow/ap-slo-engine/internal/api"
	"github.com/apflow/ap-slo-engine/internal/catalogue"
	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/httpapi"
	"github.com/apflow/ap-slo-engine/internal/metrics"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/scheduler"
	"github.com/apflow/ap-slo-engine/internal/services"
)

// withApp opens the application for one command invocation.
func withApp(cmd *cobra.Command, configPath func() string, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, configPath(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newServeCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gRPC and REST APIs and run scheduled batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, configPath(), os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, stop, a)
		},
	}
}

func serve(ctx context.Context, stop context.CancelFunc, a *app) error {
	logger := a.logger
	cfg := a.cfg
	logger.Info("starting ap-slo-engine",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("events_source", cfg.Events.Source),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	grpcServer, err := api.NewServer(cfg.Server, api.NewGRPCService(logger, a.svc))
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}
	go func() {
		if serveErr := grpcServer.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	var restServer *httpapi.Server
	if cfg.Server.HTTPAddress != "" {
		restServer = httpapi.NewServer(logger, a.svc, prometheus.DefaultGatherer)
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if serveErr := restServer.ListenAndServe(cfg.Server.HTTPAddress); serveErr != nil {
				logger.Error("http server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	schedDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(logger, a.svc, cfg.Scheduler.Periods)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		go func() {
			defer close(schedDone)
			sched.Run(ctx)
		}()
	} else {
		close(schedDone)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	grpcServer.Shutdown(shutdownCtx)
	if restServer != nil {
		if err := restServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the graceful timeout")
	}
	logger.Info("ap-slo-engine stopped")
	return nil
}

func newRunCommand(configPath func() string) *cobra.Command {
	var period string
	var hours int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure every active SLO of a period once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				res, err := a.svc.RunMeasurements(ctx, period, hours)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToBatchResult(res))
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", string(models.PeriodDaily), "measurement period (hourly|daily|weekly|monthly|quarterly)")
	cmd.Flags().IntVar(&hours, "hours", 0, "window length in hours (0 uses the period default)")
	return cmd
}

func newCalculateCommand(configPath func() string) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "calculate <slo-id>",
		Short: "Measure one SLO now, persisting the measurement and its alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				res, err := a.svc.CalculateSLO(ctx, args[0], hours)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToSLOResult(res))
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "window length in hours (0 uses the SLO period default)")
	return cmd
}

func newAlertsCommand(configPath func() string) *cobra.Command {
	alertsCmd := &cobra.Command{Use: "alerts", Short: "List and manage SLO alerts"}

	var q services.AlertQuery
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				alerts, err := a.svc.ListAlerts(ctx, q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ListAlertsResponse{Alerts: api.ToAlerts(alerts)})
			})
		},
	}
	listCmd.Flags().StringVar(&q.SLOID, "slo", "", "only alerts for this SLO id")
	listCmd.Flags().StringVar(&q.Severity, "severity", "", "only alerts of this severity (info|warning|critical)")
	listCmd.Flags().BoolVar(&q.UnresolvedOnly, "open", false, "only unresolved alerts")
	listCmd.Flags().IntVar(&q.SinceDays, "since-days", 0, "only alerts breached within this many days")
	listCmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum alerts to return")

	var actor string
	ackCmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				alert, err := a.svc.AcknowledgeAlert(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToAlert(alert))
			})
		},
	}
	ackCmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "who is acknowledging")

	var notes string
	resolveCmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				alert, err := a.svc.ResolveAlert(ctx, args[0], notes)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToAlert(alert))
			})
		},
	}
	resolveCmd.Flags().StringVar(&notes, "notes", "", "resolution notes")

	alertsCmd.AddCommand(listCmd, ackCmd, resolveCmd)
	return alertsCmd
}

func newDashboardCommand(configPath func() string) *cobra.Command {
	var days int
	var sliType string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the SLO health snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				snap, err := a.svc.Dashboard(ctx, days, sliType)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToDashboard(snap))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", services.DefaultDashboardDays, "lookback in days")
	cmd.Flags().StringVar(&sliType, "sli-type", "", "only SLOs of this SLI type")
	return cmd
}

func newHistoryCommand(configPath func() string) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history <slo-id>",
		Short: "Print one SLO's measurements and summary statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				hist, err := a.svc.MeasurementHistory(ctx, args[0], days)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ToHistory(hist))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", services.DefaultHistoryDays, "lookback in days")
	return cmd
}

func newSLOCommand(configPath func() string) *cobra.Command {
	sloCmd := &cobra.Command{Use: "slo", Short: "Inspect the SLO catalogue"}

	var activeOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List SLO definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				defs, err := a.svc.ListSLOs(ctx, activeOnly)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.ListSLOsResponse{SLOs: api.ToSLOs(defs)})
			})
		},
	}
	listCmd.Flags().BoolVar(&activeOnly, "active", false, "only active SLOs")

	toggle := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <slo-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
					if err := a.svc.SetSLOActive(ctx, args[0], active); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], use+"d")
					return nil
				})
			},
		}
	}

	sloCmd.AddCommand(listCmd,
		toggle("enable", "Include an SLO in batch runs and the dashboard", true),
		toggle("disable", "Exclude an SLO from batch runs and the dashboard", false),
	)
	return sloCmd
}

func newCatalogueCommand() *cobra.Command {
	catCmd := &cobra.Command{Use: "catalogue", Short: "Work with SLO catalogue files"}
	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a catalogue file against the catalogue schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read catalogue: %w", err)
			}
			problems, err := catalogue.Validate(data)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return fmt.Errorf("%s: %d catalogue problem(s)", args[0], len(problems))
			}
			defs, err := catalogue.Parse(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d SLO definition(s) valid\n", args[0], len(defs))
			return nil
		},
	}
	catCmd.AddCommand(validateCmd)
	return catCmd
}

func newEventsCommand(configPath func() string) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Manage the local invoice event table"}
	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Upsert invoice events from a JSON array into the SQLite event table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			var events []models.InvoiceEvent
			if err := json.Unmarshal(data, &events); err != nil {
				return fmt.Errorf("decode events: %w", err)
			}
			return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
				source, err := eventstore.NewSQLSource(a.store.DB())
				if err != nil {
					return err
				}
				start := time.Now()
				for _, e := range events {
					if err := source.Record(ctx, e); err != nil {
						return err
					}
				}
				a.logger.Info("invoice events imported", slog.Int("count", len(events)), slog.Duration("took", time.Since(start)))
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d invoice event(s)\n", len(events))
				return nil
			})
		},
	}
	eventsCmd.AddCommand(importCmd)
	return eventsCmd
}
