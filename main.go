// Command form-report runs the movement analysis server: it hosts the
// analysis engine, the session database, and the HTTP API the capture and
// review clients talk to.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/formsight-data/form.report/api"
	"github.com/formsight-data/form.report/internal/config"
	"github.com/formsight-data/form.report/internal/engine"
	"github.com/formsight-data/form.report/internal/session"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "form_sessions.db", "Session database path")
	configPath = flag.String("config", "", "Tuning config JSON (default "+config.DefaultConfigPath+")")
	devMode    = flag.Bool("dev", false, "Run in dev mode: live sessions replay the fixtures capture")
	fixtures   = flag.String("fixtures", "fixtures.jsonl", "Capture file replayed in dev mode")
	captures   = flag.String("captures", "", "Restrict recorded-session captures to this directory")
	logDiag    = flag.Bool("log-diag", false, "Enable diagnostic logging")
	logTrace   = flag.Bool("log-trace", false, "Enable per-frame trace logging")
)

// loadTuning resolves the tuning configuration: an explicit -config path
// must load, the default path may be absent.
func loadTuning() *config.TuningConfig {
	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		if *configPath != "" {
			log.Fatalf("failed to load tuning config %s: %v", *configPath, err)
		}
		log.Printf("no tuning config at %s, using built-in defaults", path)
		return config.EmptyTuningConfig()
	}
	log.Printf("loaded tuning config from %s", path)
	return cfg
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	writers := engine.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	if *logTrace {
		writers.Trace = os.Stderr
	}
	engine.SetLogWriters(writers)

	store, err := session.OpenStore(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open session database: %v", err)
	}
	defer store.Close()

	eng := engine.New(engine.Options{Tuning: loadTuning(), Store: store})

	opts := api.Options{CaptureDir: *captures}
	if *devMode {
		opts.DevCapture = *fixtures
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	apiMux := api.NewServer(eng, store, opts).ServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Welcome to the Form Report Server!"))
	})

	if err := serveHTTP(ctx, *listen, logRequests(mux)); err != nil {
		log.Printf("HTTP server error: %v", err)
	}

	// Finish any in-flight session so its summary is computed and saved.
	if eng.State() == engine.StateRunning {
		if err := eng.Stop(); err != nil {
			log.Printf("stopping session on shutdown: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
