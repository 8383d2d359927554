package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/cuemby/corral/pkg/adminapi"
	"github.com/cuemby/corral/pkg/config"
	"github.com/cuemby/corral/pkg/driver"
	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/statemgr"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
	"github.com/cuemby/corral/pkg/update"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "corrald",
	Short: "corrald - transactional task scheduler core",
	Long: `corrald runs the task state manager and rolling-update coordinator:
the transactional core of a cluster scheduler, without the resource-offer
or RPC surfaces around it.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"corrald version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "bbolt data directory (overrides config file)")
	rootCmd.PersistentFlags().String("config", "", "path to config YAML (optional)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)

	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobUpdateCmd)
	jobCmd.AddCommand(jobRollbackCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	if err := log.Init(log.Options{Level: logLevel, JSON: logJSON}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", logLevel, err)
		os.Exit(1)
	}
}

// loadConfig resolves the YAML config (if any) and applies the
// --data-dir override, the one flag every subcommand shares.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// openFacade wires a store, event broker, state manager, and update
// coordinator over cfg.DataDir and returns the admin façade plus a
// close function. Callers that only read (job status) and callers
// that mutate (serve, job update/rollback) use the same wiring —
// bbolt's single-writer model serializes whichever of them touch the
// same data directory at once.
func openFacade(cfg config.Config) (*adminapi.Facade, *events.Broker, func() error, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	broker := events.NewBroker()

	mgr := statemgr.New(store, driver.NoopDriver{}, broker)
	coord := update.New(mgr)
	facade := adminapi.New(cfg, store, mgr, coord)

	closeFn := func() error {
		broker.Close()
		return store.Close()
	}
	return facade, broker, closeFn, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler core daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		facade, _, closeFn, err := openFacade(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		probes := metrics.NewProbes(Version, "storage", "statemgr")
		probes.Set("storage", true, "opened")
		probes.Set("statemgr", true, "ready")

		collector := metrics.NewCollector(facadeFetcher{facade})
		collector.Start()
		defer collector.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", probes.Healthz())
		mux.Handle("/ready", probes.Readyz())
		mux.Handle("/live", probes.Livez())

		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		daemonLog := log.Component("corrald")
		daemonLog.Info().
			Str("metrics_addr", cfg.MetricsAddr).
			Str("data_dir", cfg.DataDir).
			Msg("corrald started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			daemonLog.Info().Msg("shutting down")
		case err := <-errCh:
			daemonLog.Error().Err(err).Msg("metrics server error")
		}

		_ = server.Close()
		return nil
	},
}

// facadeFetcher adapts Facade.GetTasksStatus to metrics.TaskFetcher.
type facadeFetcher struct{ f *adminapi.Facade }

func (ff facadeFetcher) FetchTasks(query types.TaskQuery) ([]*types.ScheduledTask, error) {
	return ff.f.GetTasksStatus(query)
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and drive job updates against the configured data directory",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tasks for a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		facade, _, closeFn, err := openFacade(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		role, _ := cmd.Flags().GetString("role")
		env, _ := cmd.Flags().GetString("env")
		name, _ := cmd.Flags().GetString("name")

		tasks, err := facade.GetTasksStatus(types.TaskQuery{Role: role, Environment: env, JobName: name})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%-36s shard=%-3d status=%-10s host=%s\n", t.TaskId, t.AssignedTask.ShardId, t.Status, t.AssignedTask.SlaveHost)
		}
		return nil
	},
}

var jobUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Advance shards of a registered update to their new config",
	RunE:  runModifyShards(true),
}

var jobRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert shards of a registered update to their old config",
	RunE:  runModifyShards(false),
}

func runModifyShards(updating bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		facade, _, closeFn, err := openFacade(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		role, _ := cmd.Flags().GetString("role")
		env, _ := cmd.Flags().GetString("env")
		name, _ := cmd.Flags().GetString("name")
		token, _ := cmd.Flags().GetString("token")
		identity, _ := cmd.Flags().GetString("identity")
		shardsRaw, _ := cmd.Flags().GetString("shards")

		shards, err := parseShardList(shardsRaw)
		if err != nil {
			return err
		}

		jobKey := types.JobKey{Role: role, Environment: env, Name: name}
		var results map[int]types.UpdateResult
		if updating {
			results, err = facade.UpdateShards(identity, jobKey, shards, token)
		} else {
			results, err = facade.RollbackShards(identity, jobKey, shards, token)
		}
		if err != nil {
			return err
		}
		for shard, result := range results {
			fmt.Printf("shard=%d result=%s\n", shard, result)
		}
		return nil
	}
}

func parseShardList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	shards := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid shard id %q: %w", p, err)
		}
		shards = append(shards, n)
	}
	return shards, nil
}

func init() {
	for _, c := range []*cobra.Command{jobStatusCmd, jobUpdateCmd, jobRollbackCmd} {
		c.Flags().String("role", "", "job role")
		c.Flags().String("env", "", "job environment")
		c.Flags().String("name", "", "job name")
	}
	for _, c := range []*cobra.Command{jobUpdateCmd, jobRollbackCmd} {
		c.Flags().String("token", "", "update token returned by registerUpdate")
		c.Flags().String("identity", "cli", "identity recorded in the audit trail")
		c.Flags().String("shards", "", "comma-separated shard ids")
	}
}
