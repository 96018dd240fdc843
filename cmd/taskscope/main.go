package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/msageha/taskscope/internal/cache"
	"github.com/msageha/taskscope/internal/config"
	"github.com/msageha/taskscope/internal/events"
	"github.com/msageha/taskscope/internal/extract"
	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/parse"
	"github.com/msageha/taskscope/internal/query"
	"github.com/msageha/taskscope/internal/vault"
)

const version = "0.3.0"

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	closer  io.Closer
	loc     *time.Location
	vault   *vault.Vault
	bus     *events.Bus
	service *query.Service
}

var (
	configPath string
	vaultRoot  string
	logLevel   string
	jsonOutput bool

	current *app
)

var rootCmd = &cobra.Command{
	Use:   "taskscope",
	Short: "Query markdown checkbox tasks across a vault",
	Long: `taskscope indexes "- [ ] ..." task lines in a directory of markdown
documents and answers filter, sort and group queries over them.

Fields are written with icons after the description:
  📅 due  🛫 start  ⏳ scheduled  ✅ done  ❌ cancelled  ➕ created
  ⏬ 🔽 🔼 ⏫ 🔺 priority  🔁 recurrence  🆔 id  ⛔ depends on  🏁 on completion`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			current.close()
			current = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", "", "vault directory (overrides vault.root)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of styled text")

	rootCmd.AddCommand(listCmd, queryCmd, searchCmd, watchCmd, statsCmd, versionCmd)
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if vaultRoot != "" {
		cfg.Vault.Root = vaultRoot
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		var ve *config.ValidationErrors
		if errors.As(err, &ve) {
			fmt.Fprint(os.Stderr, ve.FormatStderr())
		}
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger, closer := logging.Open(logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, logging.ParseLevel(cfg.Logging.Level))

	v, err := vault.New(cfg.Vault.Root, vault.Options{
		Extensions:     cfg.Vault.Extensions,
		IncludeHidden:  cfg.Vault.IncludeHidden,
		ReadsPerSecond: cfg.Limits.ReadsPerSecond,
		ReadBurst:      cfg.Limits.ReadBurst,
		Logger:         logger,
	})
	if err != nil {
		closer.Close()
		return nil, err
	}

	bus := events.NewBus(100)
	x := extract.New(v, parse.New(loc, logger), logger)
	c := cache.New(cfg.Cache.TTL, cache.WithMaxFiles(cfg.Cache.MaxFiles))
	coord := query.NewCoordinator(v, x, c,
		query.WithBatchSize(cfg.Cache.BatchSize),
		query.WithBus(bus),
		query.WithLogger(logger),
	)
	svc := query.NewService(coord,
		query.WithLocation(loc),
		query.WithLocale(cfg.Locale()),
		query.WithServiceBus(bus),
		query.WithServiceLogger(logger),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		closer:  closer,
		loc:     loc,
		vault:   v,
		bus:     bus,
		service: svc,
	}, nil
}

func (a *app) close() {
	a.bus.Close()
	if err := a.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log: %v\n", err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskscope %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
