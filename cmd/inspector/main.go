// Command inspector is the headless provisioning inspector.
//
// It loads the item configuration, starts the inspection engine (filesystem
// polling, change notifications, status-file tailing), and logs every item
// transition until interrupted. Optional surfaces: a sqlite transition
// journal, a Unix-socket query interface, and a JSON state API.
//
// Usage:
//
//	inspector
//	inspector --journal /var/lib/provisionwatch/journal.db
//	inspector --socket /var/run/provisionwatch/inspector.sock --listen 127.0.0.1:8080
//	inspector --check [--json]    # one inspection pass, print results, exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/internal/ipc"
	"github.com/provisionwatch/provisionwatch/internal/journal"
	"github.com/provisionwatch/provisionwatch/internal/stateapi"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

func main() {
	interval := flag.Duration("interval", inspect.DefaultProbeInterval, "filesystem polling interval")
	journalPath := flag.String("journal", "", "record transitions to a sqlite journal at PATH")
	socketPath := flag.String("socket", "", "serve the query interface on a Unix socket at PATH")
	listenAddr := flag.String("listen", "", "serve the JSON state API on ADDR (e.g. 127.0.0.1:8080)")
	checkOnly := flag.Bool("check", false, "run one inspection pass, print results, and exit")
	jsonOutput := flag.Bool("json", false, "output results as JSON (with --check)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	if err := config.ValidateOptionalHostPort(*listenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "--listen: %v\n", err)
		os.Exit(1)
	}

	// Packages prefix their own messages ([inspector], [watcher], ...).
	logger := log.New(os.Stderr, "", log.LstdFlags)

	if *checkOnly {
		os.Exit(runCheck(logger, *jsonOutput))
	}

	logger.Printf("%s", buildinfo.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := inspect.New(inspect.Config{
		ProbeInterval: *interval,
		Logger:        logger,
	})

	var (
		store   *journal.Store
		recDone chan struct{}
	)
	if *journalPath != "" {
		s, err := journal.Open(*journalPath)
		if err != nil {
			logger.Printf("open journal: %v", err)
			os.Exit(1)
		}
		store = s

		// Subscribe before Start so the first pass's transitions are
		// journaled. The recorder runs until the engine closes the
		// event channel on Stop.
		events := engine.Events()
		recorder := journal.NewRecorder(store, logger)
		recDone = make(chan struct{})
		go func() {
			defer close(recDone)
			recorder.Run(context.Background(), events)
		}()
	}

	if err := engine.Start(); err != nil {
		logger.Printf("configuration failed: %v", err)
		os.Exit(1)
	}

	if store != nil {
		if err := store.RecordValidation(ctx, engine.Snapshot()); err != nil {
			logger.Printf("record validation: %v", err)
		}
	}

	if *socketPath != "" {
		srv := ipc.NewServer(*socketPath, engine, store, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Printf("ipc: %v", err)
			}
		}()
	}

	if *listenAddr != "" {
		mux := http.NewServeMux()
		stateapi.RegisterRoutes(mux, stateapi.NewHandler(engine, store, logger))
		logger.Printf("state API on %s", *listenAddr)
		go func() {
			if err := http.ListenAndServe(*listenAddr, mux); err != nil {
				logger.Printf("state API: %v", err)
			}
		}()
	}

	logger.Printf("inspector running, polling every %s", *interval)
	<-ctx.Done()

	logger.Printf("shutting down")
	engine.Stop()
	if store != nil {
		<-recDone
		store.Close()
	}
}

// runCheck loads the configuration, runs one probe pass and one validation
// pass, prints the result, and returns the process exit code.
func runCheck(logger *log.Logger, jsonOutput bool) int {
	snap, err := inspect.CheckOnce(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration failed: %v\n", err)
		return 1
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return 0
	}
	printSnapshot(snap)
	return 0
}

func printSnapshot(snap inspect.Snapshot) {
	title := snap.Title
	if title == "" {
		title = "provisionwatch"
	}
	fmt.Printf("=== %s ===\n", title)
	for _, it := range snap.Items {
		st := snap.StatusOf(it.ID)
		icon := "·"
		switch st {
		case inspect.StatusCompleted:
			icon = "✓"
		case inspect.StatusDownloading:
			icon = "~"
		}
		fmt.Printf("  [%s] %-30s %s\n", icon, it.DisplayName, st)
		if res, ok := snap.Validation[it.ID]; ok && !res.Valid && res.Detail != "" {
			fmt.Printf("      → %s\n", res.Detail)
		}
	}
	fmt.Printf("\nSummary: %d/%d completed, score %.0f%%\n",
		snap.CompletedCount(), len(snap.Items), snap.Score*100)
}
