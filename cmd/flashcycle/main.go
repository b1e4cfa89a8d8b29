// Command flashcycle runs one real-time flash-flood forecasting cycle for a
// configured domain: it reconciles the precipitation archive, fills gaps,
// produces the nowcast, resolves a simulation start state, and launches the
// hydrology engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flash-forecast-service/internal/adapter/imerg"
	"github.com/couchcryptid/flash-forecast-service/internal/adapter/nowcast"
	smtpadapter "github.com/couchcryptid/flash-forecast-service/internal/adapter/smtp"
	"github.com/couchcryptid/flash-forecast-service/internal/alert"
	"github.com/couchcryptid/flash-forecast-service/internal/archive"
	"github.com/couchcryptid/flash-forecast-service/internal/config"
	"github.com/couchcryptid/flash-forecast-service/internal/cycle"
	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/engine"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
	"github.com/couchcryptid/flash-forecast-service/internal/states"
)

// gapTolerance is the number of unresolved observation gaps above which the
// predictor is skipped in favor of persistence.
const gapTolerance = 4

var (
	hindcastDate string
	strict       bool
)

var rootCmd = &cobra.Command{
	Use:   "flashcycle",
	Short: "Real-time flash-flood forecasting cycle runner",
}

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Execute one forecasting cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCycle(args[0])
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <config.yaml>",
	Short: "Validate a configuration and print the derived cycle plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return checkConfig(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&hindcastDate, "hindcast-date", "", `replay reference timestamp ("2006-01-02 15:04" UTC), overrides the config`)
	runCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the simulation engine fails")
	checkCmd.Flags().StringVar(&hindcastDate, "hindcast-date", "", `replay reference timestamp ("2006-01-02 15:04" UTC), overrides the config`)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCycle(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	plan, err := planFor(cfg)
	if err != nil {
		return err
	}

	var sender alert.Sender
	if cfg.Alerts.Enabled {
		sender = smtpadapter.NewMailer(cfg.Alerts.SMTPHost, cfg.Alerts.SMTPPort,
			cfg.Alerts.Username, cfg.Alerts.Password, cfg.Alerts.Sender)
	}

	client := imerg.NewClient(cfg.Archive.BaseURL, cfg.Archive.Credential,
		time.Duration(cfg.Archive.Timeout), logger, metrics)

	runner := cycle.NewRunner(
		cycle.Params{
			Domain:       cfg.Domain,
			Subdomain:    cfg.Subdomain,
			Model:        cfg.SystemModel,
			WorkDir:      cfg.Dirs.Precip,
			StatesDir:    cfg.Dirs.States,
			OutputDir:    cfg.Dirs.Output,
			GapTolerance: gapTolerance,
		},
		archive.NewReconciler(cfg.Dirs.Precip, cfg.Dirs.Store, cfg.Dirs.EngineInput, logger, metrics),
		archive.NewGapFiller(cfg.Dirs.Precip, cfg.Dirs.Store, client, logger, metrics),
		nowcast.NewRunner(cfg.NowcastCommand, cfg.NowcastModel, cfg.Bounds, logger),
		states.NewResolver(cfg.Dirs.States, cfg.StateVariables, logger),
		alert.NewDispatcher(sender, cfg.SystemName, cfg.Alerts.Recipients, cfg.Alerts.Enabled, logger, metrics),
		engine.NewPreparer(cfg.TemplatePath, cfg.Dirs.Output, cfg.Dirs.Data, logger),
		engine.NewExecutor(cfg.EnginePath, logger, metrics),
		logger, metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, plan)
	pushMetrics(cfg, logger, metrics)
	if err != nil {
		return err
	}

	if result.RunErr != nil {
		logger.Error("cycle finished with a failed simulation run", "error", result.RunErr)
		if strict {
			return result.RunErr
		}
	}
	return nil
}

func checkConfig(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	plan, err := planFor(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "configuration ok: %s/%s (%s)\n", cfg.Domain, cfg.Subdomain, cfg.SystemModel)
	fmt.Fprintf(out, "  current:               %s\n", plan.Current.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  system start:          %s\n", plan.SystemStart.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  warm-up end:           %s\n", plan.SystemWarmEnd.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  state save:            %s\n", plan.SystemStateEnd.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  forecast begin:        %s\n", plan.SystemStartForecast.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  system end:            %s\n", plan.SystemEnd.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  state search floor:    %s\n", plan.FailTime.Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  observation horizon:   %s\n", plan.ObservationHorizon().Format(config.HindcastDateLayout))
	fmt.Fprintf(out, "  state variables:       %v\n", cfg.StateVariables)
	return nil
}

// planFor picks the cycle reference: the hindcast override when set, the
// configured hindcast date in hindcast mode, otherwise the wall clock.
func planFor(cfg config.Config) (domain.CyclePlan, error) {
	if hindcastDate != "" {
		cfg.Hindcast.Enabled = true
		cfg.Hindcast.Date = hindcastDate
	}
	if cfg.Hindcast.Enabled {
		ref, err := cfg.HindcastDate()
		if err != nil {
			return domain.CyclePlan{}, err
		}
		return domain.Plan(ref), nil
	}
	return domain.PlanNow(), nil
}

func pushMetrics(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) {
	if cfg.Metrics.PushURL == "" {
		return
	}
	if err := metrics.Push(cfg.Metrics.PushURL, cfg.Metrics.Job); err != nil {
		logger.Warn("metrics push failed", "url", cfg.Metrics.PushURL, "error", err)
	}
}
