package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/text"
	"github.com/DaanHessen/storyloom/internal/ui"
	"github.com/DaanHessen/storyloom/internal/util"
)

var version = "0.1.0-alpha"

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg, err := util.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Text backend: openai|ollama|template")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Model name")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	format := flag.String("format", store.FormatMarkdown, "Export format: md|yaml")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "storyloom [--dsn DSN] [--backend B] [--model M] [--metrics-addr ADDR] | migrate up|down|version | list | export [--format md|yaml] <id> | version\n")
	}
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Println("storyloom", version)
			return
		case "migrate":
			if len(args) < 2 {
				log.Fatal("migrate requires 'up', 'down' or 'version'")
			}
			if err := runMigrate(ctx, cfg.DSN, args[1]); err != nil {
				log.Fatal(err)
			}
			return
		case "list", "export":
			if err := runOffline(ctx, cfg, args, *format); err != nil {
				log.Fatal(err)
			}
			return
		default:
			flag.Usage()
			os.Exit(2)
		}
	}

	logger, err := util.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Ensure migrations are applied before opening UI
	if err := runMigrate(ctx, cfg.DSN, "up"); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := store.Open(ctx, cfg.DSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	settings := store.NewSettingsRepo(db)
	license, err := settings.Get(ctx, store.SettingLicense)
	if err != nil {
		log.Fatalf("failed to read settings: %v", err)
	}
	if license == "" && cfg.APIKey != "" {
		license = cfg.APIKey
		if err := settings.Set(ctx, store.SettingLicense, license); err != nil {
			logger.Warn("seed license", zap.Error(err))
		}
	}

	backend, err := text.New(cfg, license, logger)
	if err != nil {
		log.Fatalf("text backend: %v", err)
	}
	svc := engine.NewService(store.NewStoryRepo(db), backend, cfg.ChapterCap, logger)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting", zap.String("version", version), zap.String("backend", backend.Name()), zap.String("model", cfg.Model))
	if err := ui.Run(ctx, ui.Deps{
		Service:  svc,
		Settings: settings,
		Backend:  backend,
		Config:   cfg,
		Logger:   logger,
		Version:  version,
	}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func runMigrate(ctx context.Context, dsn, action string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		return err
	}
	switch action {
	case "up":
		if err := migrator.Up(ctx); err != nil && !errors.Is(err, store.ErrNoChange) {
			return err
		}
	case "down":
		if err := migrator.Down(ctx); err != nil && !errors.Is(err, store.ErrNoChange) {
			return err
		}
		fmt.Println("Migration rolled back")
	case "version":
		v, dirty, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty=%t)\n", v, dirty)
	default:
		return fmt.Errorf("unknown migrate action %q; use up|down|version", action)
	}
	return nil
}

// runOffline serves the list and export subcommands without the UI.
func runOffline(ctx context.Context, cfg util.Config, args []string, format string) error {
	db, err := store.Open(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := store.NewStoryRepo(db)

	if args[0] == "list" {
		stories, err := repo.ListStories(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCHAPTER\tSTAGE\tSTATUS\tUPDATED")
		for _, st := range stories {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", st.ID, st.Title, st.Chapter, st.Stage, st.Status, st.UpdatedAt.Local().Format(time.RFC3339))
		}
		return w.Flush()
	}

	if len(args) < 2 {
		return errors.New("export requires a story id")
	}
	st, err := repo.GetStory(ctx, args[1])
	if err != nil {
		return err
	}
	path, err := store.WriteExport(cfg.ExportDir, st, format)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
