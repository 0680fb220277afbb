// Command tui is the interactive terminal monitor for provisionwatch.
//
// It starts the inspection engine in-process and renders the live item grid,
// per-item status, and the threshold-scored validation band.
//
// Usage:
//
//	tui [--interval 2s] [--log /tmp/provisionwatch.log]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/internal/tui/status"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

func main() {
	interval := flag.Duration("interval", inspect.DefaultProbeInterval, "filesystem polling interval")
	logPath := flag.String("log", "", "append engine logs to PATH (default: discard)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	// The alternate screen owns the terminal; engine logs go to a file or
	// nowhere.
	var logSink io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logSink = f
	}
	logger := log.New(logSink, "", log.LstdFlags)

	engine := inspect.New(inspect.Config{
		ProbeInterval: *interval,
		Logger:        logger,
	})
	if err := engine.Start(); err != nil {
		// The monitor shows the failed state and offers retry.
		logger.Printf("initial load failed: %v", err)
	}
	defer engine.Stop()

	p := tea.NewProgram(status.New(engine), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
