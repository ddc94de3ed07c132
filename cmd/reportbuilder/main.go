package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-reportbuilder"
	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/settings"
	"github.com/goliatone/go-reportbuilder/pkg/tui"
	"github.com/goliatone/go-reportbuilder/pkg/web"
)

const usage = `Usage: reportbuilder <command> [flags]

Commands:
  edit      interactive terminal editor (default)
  serve     browser view
  generate  load, apply --set overrides, generate and save
  version   print the version
`

type assignments []string

func (a *assignments) String() string { return strings.Join(*a, ",") }

func (a *assignments) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "edit"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "version":
		fmt.Fprintln(stdout, reportbuilder.Version)
		return 0
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "edit", "serve", "generate":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "JSON or YAML settings file")
	apiBase := fs.String("api-base", "", "backend base URL (overrides API_BASE)")
	timeout := fs.Duration("timeout", 0, "per-request timeout")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	out := fs.String("out", "", "directory reports are saved to")
	listen := fs.String("listen", "", "address the browser view listens on")
	variant := fs.String("theme-variant", "", "browser view theme variant")
	var sets assignments
	fs.Var(&sets, "set", "KEY=VALUE placeholder override (repeatable, generate only)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := settings.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "reportbuilder: %v\n", err)
		return 1
	}
	if *apiBase != "" {
		cfg.APIBase = *apiBase
	}
	if *timeout > 0 {
		cfg.RequestTimeout = *timeout
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *out != "" {
		cfg.DownloadDir = *out
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *variant != "" {
		cfg.ThemeVariant = *variant
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "reportbuilder: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "reportbuilder: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "generate":
		err = generate(ctx, cfg, logger, sets, stdout)
	default:
		err = edit(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func edit(ctx context.Context, cfg settings.Settings, logger *zap.Logger) error {
	sink, err := artifact.NewDirSink(cfg.DownloadDir)
	if err != nil {
		return err
	}
	session, err := reportbuilder.NewSession(cfg, sink, reportbuilder.WithLogger(logger))
	if err != nil {
		return err
	}
	editor, err := tui.New(session, tui.WithLogger(logger.Named("tui")), tui.WithConfirmReset(true))
	if err != nil {
		return err
	}
	err = editor.Run(ctx)
	if errors.Is(err, tui.ErrAborted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func generate(ctx context.Context, cfg settings.Settings, logger *zap.Logger, sets []string, stdout io.Writer) error {
	overrides, err := reportbuilder.ParseAssignments(sets)
	if err != nil {
		return err
	}
	sink, err := artifact.NewDirSink(cfg.DownloadDir)
	if err != nil {
		return err
	}
	session, err := reportbuilder.NewSession(cfg, sink, reportbuilder.WithLogger(logger))
	if err != nil {
		return err
	}
	a, err := reportbuilder.Generate(ctx, session, overrides)
	if err != nil {
		return err
	}
	path, err := sink.Path(a.Filename)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, filepath.Clean(path))
	return nil
}

func serve(ctx context.Context, cfg settings.Settings, logger *zap.Logger) error {
	downloads := web.NewDownloads()
	session, err := reportbuilder.NewSession(cfg, downloads, reportbuilder.WithLogger(logger))
	if err != nil {
		return err
	}
	themes, err := web.NewThemes()
	if err != nil {
		return err
	}
	server, err := web.New(session,
		web.WithDownloads(downloads),
		web.WithLogger(logger.Named("web")),
		web.WithHealthCheck(session.Client.Health),
		web.WithTheme(themes, web.DefaultThemeName, cfg.ThemeVariant),
	)
	if err != nil {
		return err
	}

	go func() {
		if err := session.Client.Health(ctx); err != nil {
			logger.Warn("backend not healthy at startup", zap.String("api_base", cfg.APIBase), zap.Error(err))
		}
		_ = session.LoadConfig(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen), zap.String("api_base", cfg.APIBase))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
