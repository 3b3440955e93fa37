package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/intentlabs/agentbook/internal/common"
	"github.com/intentlabs/agentbook/internal/config"
	"github.com/intentlabs/agentbook/internal/contracts"
	"github.com/intentlabs/agentbook/internal/db"
	"github.com/intentlabs/agentbook/internal/events"
	"github.com/intentlabs/agentbook/internal/ingest"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/metrics"
	"github.com/intentlabs/agentbook/internal/migrations"
	"github.com/intentlabs/agentbook/internal/rpc"
	"github.com/intentlabs/agentbook/internal/solver"
	"github.com/intentlabs/agentbook/internal/store"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║            agentbook v%s               ║
║   Agent Ledger Ingestion and Settlement   ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentbook",
	Short: "agentbook - agent ledger ingestion and settlement",
	Long: `agentbook watches the agent ledger contracts and reconstructs their
state into a local SQLite database. It ships two engines: an ingestion
engine that projects ledger events into queryable state, and a
settlement solver that fills open intents at their constraint boundary.`,
	Version: version,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run the event ingestion engine",
	Long: `Poll the ledger for events from the watched contracts, decode them and
project them into the local database. Resumes from the stored checkpoint
on restart.`,
	RunE: runIndex,
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the settlement solver",
	Long: `Listen for intent submissions on the intent book and settle open
intents at their constraint boundary. Requires a funded solver key.`,
	RunE: runSolve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(solveCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}

// startMetrics starts the metrics server when enabled and returns a stop
// function. The stop function is a no-op when metrics are disabled.
func startMetrics(ctx context.Context, cfg *config.Config, log *logger.Logger) (func(), error) {
	if cfg.Metrics == nil || !cfg.Metrics.Enabled {
		return func() {}, nil
	}

	server := metrics.NewServer(cfg.Metrics, log)
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	log.Infof("metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)

	return func() {
		if err := server.Stop(ctx); err != nil {
			log.Warnf("failed to stop metrics server: %v", err)
		}
	}, nil
}

func watchedSchemas(contracts config.ContractsConfig) map[ethcommon.Address]events.Schema {
	schemas := map[ethcommon.Address]events.Schema{
		ethcommon.HexToAddress(contracts.AgentRegistry): events.SchemaAgentRegistry,
		ethcommon.HexToAddress(contracts.IntentBook):    events.SchemaIntentBook,
		ethcommon.HexToAddress(contracts.PolicyModule):  events.SchemaPolicyModule,
	}
	if contracts.AttestationRegistry != "" {
		schemas[ethcommon.HexToAddress(contracts.AttestationRegistry)] = events.SchemaAttestationRegistry
	}
	return schemas
}

func runIndex(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentIngestor, cfg.Logging)

	log.Info("Connecting to ledger RPC...")
	client, err := rpc.NewClient(ctx, &cfg.Chain,
		logger.NewComponentLoggerFromConfig(common.ComponentRPC, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	log.Infof("Connected to ledger RPC: %s", cfg.Chain.RPCURL)

	stopMetrics, err := startMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(log, cfg.Ingest.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Ingest.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	registryAddr := ethcommon.HexToAddress(cfg.Contracts.AgentRegistry)
	bookAddr := ethcommon.HexToAddress(cfg.Contracts.IntentBook)

	ingestor := ingest.New(
		client,
		events.NewDecoder(watchedSchemas(cfg.Contracts)),
		store.New(database),
		contracts.NewAgentRegistry(registryAddr, client),
		contracts.NewIntentBook(bookAddr, client),
		ingest.Config{
			PollInterval: cfg.Ingest.PollInterval.Duration,
			StartBlock:   cfg.Ingest.StartBlock,
		},
		log,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ingestor.Run(ctx) })
	if err := group.Wait(); err != nil {
		return fmt.Errorf("ingestion engine failed: %w", err)
	}

	log.Info("agentbook stopped successfully")
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateSolver(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentExecutor, cfg.Logging)

	log.Info("Connecting to ledger RPC...")
	client, err := rpc.NewClient(ctx, &cfg.Chain,
		logger.NewComponentLoggerFromConfig(common.ComponentRPC, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	log.Infof("Connected to ledger RPC: %s", cfg.Chain.RPCURL)

	stopMetrics, err := startMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	book := contracts.NewIntentBook(ethcommon.HexToAddress(cfg.Contracts.IntentBook), client)

	s, err := solver.New(ctx, client, book, cfg.Solver, log)
	if err != nil {
		return fmt.Errorf("failed to create solver: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.Run(ctx) })
	if err := group.Wait(); err != nil {
		return fmt.Errorf("settlement solver failed: %w", err)
	}

	log.Info("agentbook stopped successfully")
	return nil
}
