package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/snowsentry/snowsentry/internal/adapter/snowflake"
	"github.com/snowsentry/snowsentry/internal/audit"
	"github.com/snowsentry/snowsentry/internal/catalog"
	"github.com/snowsentry/snowsentry/internal/config"
	"github.com/snowsentry/snowsentry/internal/core/port"
	"github.com/snowsentry/snowsentry/internal/core/service"
	"github.com/snowsentry/snowsentry/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"
)

// flagValues holds the raw CLI flag values shared by all subcommands.
type flagValues struct {
	account      string
	user         string
	role         string
	warehouse    string
	logLevel     string
	maxRows      int
	queryTimeout time.Duration
	checksFile   string
	auditLog     string
	otelEnabled  bool
}

func newRootCmd() *cobra.Command {
	flags := &flagValues{}

	root := &cobra.Command{
		Use:           "snowsentry",
		Short:         "Security audit checks for Snowflake account usage",
		Long:          "snowsentry runs a catalog of security audit queries against the SNOWFLAKE.ACCOUNT_USAGE schema and can register them as stored procedures.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags.register(root.PersistentFlags())

	root.AddCommand(
		newListCmd(flags),
		newShowCmd(flags),
		newRunCmd(flags),
		newRegisterCmd(flags),
		newServeCmd(flags),
	)

	return root
}

func (f *flagValues) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.account, "account", "", "Snowflake account identifier (overrides SNOWFLAKE_ACCOUNT)")
	fs.StringVar(&f.user, "user", "", "Snowflake user (overrides SNOWFLAKE_USER)")
	fs.StringVar(&f.role, "role", "", "Snowflake role (overrides SNOWFLAKE_ROLE)")
	fs.StringVar(&f.warehouse, "warehouse", "", "Snowflake warehouse (overrides SNOWFLAKE_WAREHOUSE)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.IntVar(&f.maxRows, "max-rows", 0, "maximum rows returned per check")
	fs.DurationVar(&f.queryTimeout, "query-timeout", 0, "per-query timeout")
	fs.StringVar(&f.checksFile, "checks-file", "", "YAML manifest with additional text-only checks")
	fs.StringVar(&f.auditLog, "audit-log", "", "append an NDJSON audit record per executed check to this file")
	fs.BoolVar(&f.otelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
}

// overrides maps changed flags to config overrides; unset flags stay nil so
// environment values survive.
func (f *flagValues) overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		AuditLog:    f.auditLog,
		OTelEnabled: f.otelEnabled,
	}

	set := cmd.Flags()
	if set.Changed("account") {
		o.Account = &f.account
	}
	if set.Changed("user") {
		o.User = &f.user
	}
	if set.Changed("role") {
		o.Role = &f.role
	}
	if set.Changed("warehouse") {
		o.Warehouse = &f.warehouse
	}
	if set.Changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	if set.Changed("max-rows") {
		o.MaxRows = &f.maxRows
	}
	if set.Changed("query-timeout") {
		o.QueryTimeout = &f.queryTimeout
	}
	if set.Changed("checks-file") {
		o.ChecksFile = &f.checksFile
	}

	return o
}

// loadCatalog builds the check catalog for offline commands (list, show),
// which need no Snowflake credentials.
func loadCatalog(flags *flagValues) (*catalog.Catalog, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	checksFile := flags.checksFile
	if checksFile == "" {
		checksFile = os.Getenv("CHECKS_FILE")
	}
	if checksFile != "" {
		if err := cat.LoadManifest(checksFile); err != nil {
			return nil, fmt.Errorf("loading checks manifest: %w", err)
		}
	}

	return cat, nil
}

// app bundles everything a connected subcommand needs, plus its teardown.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	session *snowflake.Session
	audit   *service.AuditService
	tracer  trace.Tracer
	inst    port.Instrumentation

	closers []func(context.Context) error
}

// setup loads config, connects to Snowflake and wires the audit service.
// Callers must invoke close when done.
func setup(ctx context.Context, flags *flagValues, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(flags.overrides(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr so stdout stays clean for results and the MCP
	// stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	a := &app{cfg: cfg, logger: logger}

	a.catalog, err = catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if cfg.ChecksFile != "" {
		if err := a.catalog.LoadManifest(cfg.ChecksFile); err != nil {
			return nil, fmt.Errorf("loading checks manifest: %w", err)
		}
		logger.Info("checks manifest loaded", slog.String("file", cfg.ChecksFile))
	}

	a.tracer = telemetry.NoopTracer()
	instruments := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "snowsentry", version)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.closers = append(a.closers, provider.Shutdown)
		a.tracer = provider.Tracer("snowsentry")
		instruments = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}
	a.inst = instruments

	var auditor port.CheckAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return fileAuditor.Close() })
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	a.session, err = snowflake.Open(ctx, snowflake.Config{
		Account:      cfg.Account,
		User:         cfg.User,
		Password:     cfg.Password,
		Role:         cfg.Role,
		Warehouse:    cfg.Warehouse,
		QueryTimeout: cfg.QueryTimeout,
		MaxRows:      cfg.MaxRows,
	}, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("connecting to snowflake: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.session.Close() })

	logger.Info("session connected",
		slog.String("account", cfg.Account),
		slog.String("user", cfg.User),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
	)

	a.audit = service.NewAuditService(a.catalog, a.session, auditor, logger, a.tracer, a.inst)

	return a, nil
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown error", slog.String("error", err.Error()))
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
