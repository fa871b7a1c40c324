// Command videoanalyze runs a recorded pose capture through the full
// analysis pipeline and prints the session summary. It can also persist
// the session and write the HTML report, without running the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/formsight-data/form.report/internal/config"
	"github.com/formsight-data/form.report/internal/engine"
	"github.com/formsight-data/form.report/internal/report"
	"github.com/formsight-data/form.report/internal/session"
	"github.com/formsight-data/form.report/internal/source"
)

var (
	capturePath = flag.String("capture", "", "JSONL pose capture to analyse (required)")
	configPath  = flag.String("config", "", "Tuning config JSON (built-in defaults when empty)")
	dbFile      = flag.String("db", "", "Persist the session to this database")
	reportPath  = flag.String("report", "", "Write the HTML report to this file")
	jsonOut     = flag.Bool("json", false, "Print the full session as JSON instead of a text summary")
	logDiag     = flag.Bool("log-diag", false, "Enable diagnostic logging")
)

func main() {
	flag.Parse()

	if *capturePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	writers := engine.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	engine.SetLogWriters(writers)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	var store *session.Store
	if *dbFile != "" {
		var err error
		store, err = session.OpenStore(*dbFile)
		if err != nil {
			log.Fatalf("failed to open session database: %v", err)
		}
		defer store.Close()
	}

	src, err := source.NewReplaySource(*capturePath)
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Options{Tuning: tuning, Store: store})
	sess, err := eng.Analyze(ctx, src)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if *reportPath != "" {
		f, err := os.Create(*reportPath)
		if err != nil {
			log.Fatalf("failed to create report file: %v", err)
		}
		if err := report.Render(f, sess); err != nil {
			f.Close()
			log.Fatalf("failed to render report: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("failed to write report: %v", err)
		}
		log.Printf("report written to %s", *reportPath)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sess); err != nil {
			log.Fatalf("failed to encode session: %v", err)
		}
		return
	}

	printSummary(sess)
}

func printSummary(sess *session.Session) {
	fmt.Printf("Session %s (%s)\n", sess.ID, sess.Mode)
	fmt.Printf("Reps completed: %d\n", sess.RepCount())
	for _, rep := range sess.Reps {
		depth := "n/a"
		if rep.BottomMetrics.DepthRatio.OK {
			depth = fmt.Sprintf("%.2f", rep.BottomMetrics.DepthRatio.V)
		}
		fmt.Printf("  rep %d: depth ratio %s, ascent %.2fs\n", rep.Index, depth, rep.AscentSeconds())
	}

	if len(sess.Summary) == 0 {
		fmt.Println("No feedback recorded.")
		return
	}
	fmt.Println("Feedback:")
	for _, item := range sess.Summary {
		if item.Count > 1 {
			fmt.Printf("  - %s (%d reps)\n", item.Message, item.Count)
		} else {
			fmt.Printf("  - %s\n", item.Message)
		}
	}
}
