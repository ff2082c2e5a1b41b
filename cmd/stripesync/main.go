package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flexprice/stripesync/internal/billing"
	"github.com/flexprice/stripesync/internal/config"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/preflight"
	"github.com/flexprice/stripesync/internal/reconciler"
	"github.com/flexprice/stripesync/internal/secretstore"
	"github.com/flexprice/stripesync/internal/sentry"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	manifestPath  string
	stageOverride string
	envOutDir     string
)

var rootCmd = &cobra.Command{
	Use:          "stripesync",
	Short:        "Reconcile declared Stripe webhooks, products and portals against a stack's accounts",
	Long:         `stripesync converges the webhooks, products/prices and customer-portal configurations declared in a stack manifest onto one or more Stripe accounts, so repeated deploys neither duplicate nor orphan remote resources.`,
	Version:      Version,
	SilenceUsage: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Statically check the stack manifest without touching remote state",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer app.close()

		fmt.Printf("manifest %s is valid (%d account(s))\n", manifestPath, len(app.manifest.Accounts))
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create and update remote entities to match the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.close()

		blocks, err := app.orchestrator.Deploy(cmd.Context())
		if err != nil {
			return app.fatal(err)
		}
		app.printSummary(blocks)

		if envOutDir != "" {
			if err := app.env.WriteFiles(envOutDir); err != nil {
				return app.fatal(err)
			}
			fmt.Printf("env files written to %s\n", envOutDir)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete webhook endpoints marked for deletion by the last apply",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.close()

		blocks, err := app.orchestrator.Sweep(cmd.Context())
		if err != nil {
			return app.fatal(err)
		}
		app.printSummary(blocks)
		return nil
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete every owned webhook endpoint (products and portals are preserved)",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.close()

		blocks, err := app.orchestrator.Teardown(cmd.Context())
		if err != nil {
			return app.fatal(err)
		}
		app.printSummary(blocks)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stripesync %s\n", Version)
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "stripesync.yaml", "path to the stack manifest")
	rootCmd.PersistentFlags().StringVar(&stageOverride, "stage", "", "override the manifest stage")
	rootCmd.PersistentFlags().StringVar(&envOutDir, "env-out", "", "directory to write resolved env files to")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired collaborators of one invocation.
type app struct {
	cfg          *config.Configuration
	logger       *logger.Logger
	sentry       *sentry.Service
	manifest     *manifest.Manifest
	env          *stack.EnvMap
	orchestrator *reconciler.Orchestrator
}

// bootstrap loads configuration, the manifest and, for remote phases, builds
// the per-account providers and the secret store.
func bootstrap(ctx context.Context, remote bool) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	sentrySvc := sentry.NewService(cfg, log)
	if err := sentrySvc.Init(); err != nil {
		return nil, err
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if stageOverride != "" {
		m.Stage = stageOverride
	}

	// The gate runs before anything remote is even constructed.
	if err := preflight.Validate(m); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		sentry:   sentrySvc,
		manifest: m,
		env:      stack.NewEnvMap(),
	}
	if !remote {
		return a, nil
	}

	if m.Region != "" {
		cfg.AWS.Region = m.Region
	}
	awsCfg, err := config.LoadAwsConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secrets := secretstore.NewSSMStore(awsCfg, log)

	providers := make(map[string]billing.Provider, len(m.Accounts))
	for _, account := range m.Accounts {
		apiKey := os.Getenv(account.APIKeyEnv)
		if apiKey == "" {
			return nil, ierr.NewError("missing provider API key").
				WithHintf("Env variable %s for account %s is not set", account.APIKeyEnv, account.AccountID).
				Mark(ierr.ErrValidation)
		}
		providers[account.AccountID] = billing.NewStripeProvider(apiKey, cfg, log)
	}

	orchestrator, err := reconciler.NewOrchestrator(m, reconciler.Dependencies{
		Providers: providers,
		Secrets:   secrets,
		Env:       a.env,
		Logger:    log,
		ManagedBy: cfg.Sync.ManagedBy,
	})
	if err != nil {
		return nil, err
	}
	a.orchestrator = orchestrator

	return a, nil
}

func (a *app) printSummary(blocks []string) {
	fmt.Printf("run %s (%s/%s)\n\n", a.orchestrator.RunID(), a.manifest.Service, a.manifest.Stage)
	fmt.Println(strings.TrimRight(strings.Join(blocks, "\n"), "\n"))
}

// fatal reports the error to Sentry before surfacing it.
func (a *app) fatal(err error) error {
	a.logger.Errorw("run failed", "error", err)
	a.sentry.CaptureError(err)
	return err
}

func (a *app) close() {
	a.sentry.Flush()
}
