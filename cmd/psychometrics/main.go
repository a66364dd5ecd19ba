package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"gohypo/adapters/db/postgres"
	"gohypo/adapters/db/postgres/migrations"
	"gohypo/app"
	"gohypo/domain/core"
	"gohypo/internal/config"
	apperrors "gohypo/internal/errors"
	"gohypo/internal/testkit"
)

// Exit codes per spec.md §6: 0 success, 1 store error, 2 computation
// error, 3 configuration error.
const (
	exitOK           = 0
	exitStoreError   = 1
	exitComputeError = 2
	exitConfigError  = 3
)

// cliHeartbeat is the one JSON line each scheduled entry point emits on
// stdout, matching spec.md §6's required shape.
type cliHeartbeat struct {
	Type      string `json:"type"`
	Service   string `json:"service"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}

func emitHeartbeat(service, summary string) {
	hb := cliHeartbeat{Type: "HEARTBEAT", Service: service, Summary: summary, Timestamp: core.Now().String()}
	line, err := json.Marshal(hb)
	if err != nil {
		log.Printf("failed to marshal heartbeat for %s: %v", service, err)
		return
	}
	fmt.Println(string(line))
}

// exitCodeFor maps an §7 error kind to the §6 process exit code.
func exitCodeFor(err error) int {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return exitComputeError
	}
	switch appErr.Code {
	case apperrors.CodeStoreError, apperrors.CodeConcurrentModification:
		return exitStoreError
	case apperrors.CodeConfigInvalid:
		return exitConfigError
	default:
		return exitComputeError
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	rootCmd := &cobra.Command{
		Use:   "psychometrics",
		Short: "Scheduled jobs and dev helpers for the adaptive testing psychometric core",
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newRunCalibrationCmd(),
		newRunCATReadinessCmd(),
		newRunReliabilityReportCmd(),
		newServeHooksCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitComputeError)
	}
}

// wiring bundles every service a subcommand might need, built once per
// invocation from a live Postgres-backed ResponseStore.
type wiring struct {
	db        *sqlx.DB
	cfg       config.PsychometricsConfig
	calib     *app.CalibrationService
	readiness *app.ReadinessService
	reliab    *app.ReliabilityService
	ctt       *app.CTTService
	scoring   *app.ScoringService
	orch      *app.Orchestrator
}

func connect() (*wiring, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", appCfg.Database.URL)
	if err != nil {
		return nil, apperrors.StoreError("connect", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.StoreError("ping", err)
	}

	store := postgres.NewResponseStore(db)
	cfg := appCfg.Psychometrics
	rng := &testkit.RNGAdapter{}
	validitySvc := app.NewValidityService(store, cfg)
	scoringSvc := app.NewScoringService(store, validitySvc, cfg)
	cttSvc := app.NewCTTService(store, cfg)
	readinessSvc := app.NewReadinessService(store, cfg)
	calibSvc := app.NewCalibrationService(store, rng, cfg)
	orch := app.NewOrchestrator(cttSvc, scoringSvc, readinessSvc, calibSvc, appCfg.Server.HookTimeout)

	return &wiring{
		db: db, cfg: cfg,
		calib: calibSvc, readiness: readinessSvc, reliab: app.NewReliabilityService(store, cfg),
		ctt: cttSvc, scoring: scoringSvc, orch: orch,
	}, nil
}

// newMigrateCmd applies the schema under adapters/db/postgres/migrations
// against DATABASE_URL, grounded on the teacher's migration runner
// (internal/migration/migration.go), adapted from a hardcoded table-by-
// table sequence to a directory-scanned, checksum-recorded one since this
// module ships its schema as versioned .sql files rather than inline DDL.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.Load()
			if err != nil {
				emitHeartbeat("migrate", "failed: "+err.Error())
				os.Exit(exitConfigError)
			}

			db, err := sqlx.Connect("postgres", appCfg.Database.URL)
			if err != nil {
				emitHeartbeat("migrate", "failed: "+err.Error())
				os.Exit(exitStoreError)
			}
			defer db.Close()

			if err := migrations.NewMigrator(db.DB).Up(cmd.Context()); err != nil {
				emitHeartbeat("migrate", "failed: "+err.Error())
				os.Exit(exitStoreError)
			}
			emitHeartbeat("migrate", "schema up to date")
			os.Exit(exitOK)
			return nil
		},
	}
}

func newRunCalibrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run_calibration",
		Short: "Run a full IRT 2-PL calibration pass over eligible items (§4.E)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := connect()
			if err != nil {
				emitHeartbeat("run_calibration", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			defer w.db.Close()

			run, err := w.calib.Run(cmd.Context(), core.NewCalibrationID())
			if err != nil {
				emitHeartbeat("run_calibration", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			emitHeartbeat("run_calibration", fmt.Sprintf("calibrated=%d skipped=%d", run.Calibrated, run.Skipped))
			os.Exit(exitOK)
			return nil
		},
	}
}

func newRunCATReadinessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run_cat_readiness",
		Short: "Recompute the global CAT readiness snapshot (§4.G)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := connect()
			if err != nil {
				emitHeartbeat("run_cat_readiness", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			defer w.db.Close()

			if err := w.readiness.Evaluate(cmd.Context()); err != nil {
				emitHeartbeat("run_cat_readiness", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			emitHeartbeat("run_cat_readiness", "readiness snapshot recomputed")
			os.Exit(exitOK)
			return nil
		},
	}
}

func newRunReliabilityReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run_reliability_report",
		Short: "Compute Cronbach's alpha, split-half, and test-retest reliability (§4.C)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := connect()
			if err != nil {
				emitHeartbeat("run_reliability_report", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			defer w.db.Close()

			ctx := cmd.Context()
			alpha, err := w.reliab.ComputeAlpha(ctx)
			if err != nil {
				emitHeartbeat("run_reliability_report", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			splitHalf, err := w.reliab.ComputeSplitHalf(ctx)
			if err != nil {
				emitHeartbeat("run_reliability_report", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}
			testRetest, err := w.reliab.ComputeTestRetest(ctx)
			if err != nil {
				emitHeartbeat("run_reliability_report", "failed: "+err.Error())
				os.Exit(exitCodeFor(err))
			}

			emitHeartbeat("run_reliability_report", fmt.Sprintf(
				"alpha=%.4f(n=%d) split_half=%.4f(n=%d) test_retest=%.4f(n=%d)",
				alpha.Value, alpha.SampleSize,
				splitHalf.Value, splitHalf.SampleSize,
				testRetest.Value, testRetest.SampleSize,
			))
			os.Exit(exitOK)
			return nil
		},
	}
}

// newServeHooksCmd is a dev helper that replays OnSubmission against the
// in-memory test store for a synthetic session, letting an operator watch
// the per-submission heartbeat shape without a live database — grounded on
// the teacher's cmd/dev demo-mode pattern.
func newServeHooksCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "serve-hooks",
		Short: "Replay the per-submission hook against an in-memory fixture (dev helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.Load()
			if err != nil {
				emitHeartbeat("serve-hooks", "failed: "+err.Error())
				os.Exit(exitConfigError)
			}

			store := testkit.NewInMemoryResponseStore()
			cfg := appCfg.Psychometrics
			validitySvc := app.NewValidityService(store, cfg)
			scoringSvc := app.NewScoringService(store, validitySvc, cfg)
			cttSvc := app.NewCTTService(store, cfg)
			readinessSvc := app.NewReadinessService(store, cfg)
			calibSvc := app.NewCalibrationService(store, &testkit.RNGAdapter{}, cfg)
			orch := app.NewOrchestrator(cttSvc, scoringSvc, readinessSvc, calibSvc, 5*time.Second)

			orch.OnSubmission(context.Background(), core.SessionID(sessionID), true)
			os.Exit(exitOK)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "demo-session", "session id to replay through the hook")
	return cmd
}
