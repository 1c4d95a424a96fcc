package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/theatre/internal/config"
	"github.com/ehr/theatre/internal/domain/theatre"
	"github.com/ehr/theatre/internal/platform/auth"
	"github.com/ehr/theatre/internal/platform/caseapi"
	"github.com/ehr/theatre/internal/platform/db"
	"github.com/ehr/theatre/internal/platform/middleware"
	"github.com/ehr/theatre/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "theatre-console",
		Short:         "Theatre-case workflow console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func workflowOptions(cfg *config.Config) theatre.Options {
	return theatre.Options{
		ScopeKey:         cfg.ScopeKey,
		ExitPath:         cfg.ExitPath,
		RealtimeEvent:    cfg.RealtimeEvent,
		SearchDebounce:   cfg.SearchDebounce(),
		RealtimeThrottle: cfg.RealtimeThrottle(),
		QueueLimit:       cfg.QueueLimit,
		OptionLimit:      cfg.OptionLimit,
	}
}

func scopeKey(cfg *config.Config) string {
	if cfg.ScopeKey != "" {
		return cfg.ScopeKey
	}
	return theatre.DefaultScopeKey
}

// app holds the collaborators of one workflow session.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	client   *caseapi.Client
	pool     *pgxpool.Pool
	legacy   theatre.LegacyRouteResolver
	oracle   *auth.ClaimsOracle
	router   *theatre.MemoryRouter
	hub      *websocket.Hub
	workflow *theatre.Workflow
}

// newApp wires the workflow. The database is optional; realtime updates
// are only subscribed when withRealtime is set and REALTIME_URL is present.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, initialPath string, withRealtime bool) (*app, error) {
	client, err := caseapi.NewClient(caseapi.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		legacy: client,
		oracle: auth.NewClaimsOracle(cfg.APIToken, []byte(cfg.TokenSigningKey), logger),
		router: theatre.NewMemoryRouter(initialPath),
		hub:    websocket.NewHub(logger),
	}

	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.legacy = db.NewCachingResolver(db.NewLegacyRouteStore(pool), client, logger)
		logger.Info().Msg("connected to legacy-route database")
	}

	var bus theatre.RealtimeBus
	if withRealtime && cfg.RealtimeURL != "" {
		bus = websocket.NewDialer(cfg.RealtimeURL, cfg.APIToken, logger)
	}

	a.workflow = theatre.New(theatre.Dependencies{
		Cases:      client,
		Legacy:     a.legacy,
		References: client,
		Oracle:     a.oracle,
		Bus:        bus,
		Router:     a.router,
		Logger:     logger,
		OnChange: func(s theatre.State) {
			a.hub.PublishState(s)
		},
	}, workflowOptions(cfg))
	return a, nil
}

func (a *app) Close() {
	a.workflow.Close()
	if a.pool != nil {
		a.pool.Close()
	}
}

// newServer builds the BFF HTTP surface around the app's workflow.
func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout()))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}

	g := e.Group("/api/v1/theatre-flow")
	var writeMW []echo.MiddlewareFunc
	if a.cfg.TokenSigningKey != "" {
		g.Use(auth.RequireToken([]byte(a.cfg.TokenSigningKey), scopeKey(a.cfg)))
		writeMW = append(writeMW, auth.RequirePermission(scopeKey(a.cfg), "write"))
	}
	theatre.NewHandler(a.workflow).RegisterRoutes(g, writeMW...)
	websocket.NewWebSocketHandler(a.hub, a.cfg.CORSOrigins, websocket.StateTopic).RegisterRoutes(g)
	return e
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the theatre workflow over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, theatre.BasePath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.workflow.Mount(ctx); err != nil {
		// access denial leaves the server up so clients see the redirect
		logger.Warn().Err(err).Msg("workflow mount failed")
	}

	e := newServer(a)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("api", cfg.APIBaseURL).Msg("starting theatre console")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// withSession loads config, mounts a workflow on path and runs fn.
func withSession(cmd *cobra.Command, path string, fn func(ctx context.Context, a *app) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger("production", "warn")
	if cfg.IsDev() {
		logger = newLogger(cfg.Env, cfg.LogLevel)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger, path, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.workflow.Mount(ctx); err != nil {
		return err
	}
	if le := a.workflow.State().LoadError; le != nil {
		return fmt.Errorf("%s", le.Message)
	}
	return fn(ctx, a)
}

func queueCmd() *cobra.Command {
	var filters struct {
		search, scope, stage, status, room, finalized string
	}
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List the theatre-case queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilters(filters.search, filters.scope, filters.stage, filters.status, filters.room, filters.finalized)
			if err != nil {
				return err
			}
			return withSession(cmd, theatre.BasePath, func(ctx context.Context, a *app) error {
				return runQueue(ctx, a, f, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&filters.search, "search", "", "free-text search")
	cmd.Flags().StringVar(&filters.scope, "scope", "", "queue scope (ACTIVE, FINALIZED, ALL)")
	cmd.Flags().StringVar(&filters.stage, "stage", "", "workflow stage")
	cmd.Flags().StringVar(&filters.status, "status", "", "case status")
	cmd.Flags().StringVar(&filters.room, "room", "", "room id")
	cmd.Flags().StringVar(&filters.finalized, "finalized", "", "true, false or empty for any")
	return cmd
}

// runQueue applies the filters and search in one shot and prints the queue.
func runQueue(ctx context.Context, a *app, f theatre.Filters, w io.Writer) error {
	a.workflow.ApplySearch(f.Search)
	if err := a.workflow.SetFilters(ctx, f); err != nil {
		return err
	}
	printQueue(w, a.workflow.State().Queue)
	return nil
}

func parseFilters(search, scope, stage, status, room, finalized string) (theatre.Filters, error) {
	f := theatre.Filters{
		Search:     search,
		QueueScope: theatre.QueueScope(strings.ToUpper(scope)),
		Stage:      theatre.Stage(strings.ToUpper(stage)),
		Status:     theatre.CaseStatus(strings.ToUpper(status)),
		RoomID:     room,
		Finalized:  theatre.ParseTriState(finalized),
	}
	if f.Stage != "" && !f.Stage.Valid() {
		return f, fmt.Errorf("unknown stage %q", stage)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("unknown status %q", status)
	}
	return f, nil
}

func printQueue(w io.Writer, cases []theatre.TheatreCase) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tSTATUS\tPATIENT\tPROCEDURE\tSCHEDULED")
	for _, c := range cases {
		scheduled := ""
		if c.ScheduledAt != nil {
			scheduled = c.ScheduledAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.RouteID(), c.Stage, c.Status, c.PatientName, c.ProcedureName, scheduled)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Print a theatre-case snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := theatre.RouteState{ID: args[0]}.Path()
			return withSession(cmd, path, func(ctx context.Context, a *app) error {
				s := a.workflow.State()
				if s.Selected == nil {
					return fmt.Errorf("case %s not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), s.Selected)
			})
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <resource> <legacy-id>",
		Short: "Translate a legacy record reference into a theatre case route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := theatre.RouteState{Resource: args[0], LegacyID: args[1]}.Path()
			return withSession(cmd, path, func(ctx context.Context, a *app) error {
				if a.router.Params().ID == "" {
					return fmt.Errorf("no theatre case found for %s/%s", args[0], args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.workflow.RoutePath())
				return nil
			})
		},
	}
}

func runCmd() *cobra.Command {
	var caseID, data string
	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Run a workflow command against a theatre case",
		Long:  "Run a workflow command. --data takes the JSON payload, e.g. '{\"stage\":\"SIGN_IN\"}'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, payload, err := decodeCommand(args[0], data)
			if err != nil {
				return err
			}
			if err := requireCase(name, caseID); err != nil {
				return err
			}
			path := theatre.BasePath
			if caseID != "" {
				path = theatre.RouteState{ID: caseID}.Path()
			}
			return withSession(cmd, path, func(ctx context.Context, a *app) error {
				snap, err := a.workflow.Dispatch(ctx, name, payload)
				if err != nil {
					return explainBackendError(err)
				}
				return writeJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "theatre case id (required for every command but start)")
	cmd.Flags().StringVar(&data, "data", "{}", "JSON payload")
	return cmd
}

// explainBackendError adds a hint for backend statuses an operator can act on.
func explainBackendError(err error) error {
	switch {
	case caseapi.IsUnauthorized(err):
		return fmt.Errorf("backend rejected API_TOKEN: %w", err)
	case caseapi.IsForbidden(err):
		return fmt.Errorf("API_TOKEN may not perform this command: %w", err)
	case caseapi.IsNotFound(err):
		return fmt.Errorf("theatre case not found: %w", err)
	case caseapi.IsConflict(err):
		return fmt.Errorf("case changed on the server, reload and retry: %w", err)
	}
	return err
}

var errCaseRequired = errors.New("--case is required")

// requireCase keeps case commands off the queue's auto-selected row.
func requireCase(name theatre.CommandName, caseID string) error {
	if theatre.CommandNeedsCase(name) && strings.TrimSpace(caseID) == "" {
		return fmt.Errorf("%s: %w", name, errCaseRequired)
	}
	return nil
}

func decodeCommand(rawName, data string) (theatre.CommandName, any, error) {
	name := theatre.CommandName(rawName)
	payload, ok := theatre.NewPayload(name)
	if !ok {
		return name, nil, fmt.Errorf("%w: %s", theatre.ErrUnknownCommand, rawName)
	}
	if strings.TrimSpace(data) != "" {
		if err := json.Unmarshal([]byte(data), payload); err != nil {
			return name, nil, fmt.Errorf("decode --data for %s: %w", rawName, err)
		}
	}
	return name, payload, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the legacy-route database",
	}

	var schema, dir string
	openMigrator := func(ctx context.Context) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if !cfg.HasDatabase() {
			return nil, nil, fmt.Errorf("DATABASE_URL is required")
		}
		if dir == "" {
			dir = cfg.MigrationsDir
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, dir, schema), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().StringVar(&schema, "schema", db.DefaultSchema, "target schema")
		c.Flags().StringVar(&dir, "dir", "", "migrations directory (default MIGRATIONS_DIR)")
		cmd.AddCommand(c)
	}
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	_ = tw.Flush()
}
