// Command validate evaluates every configured compliance predicate once and
// prints a report. It never starts the engine's signal sources.
//
// Exit codes: 0 when every check passes, 1 when any check fails, 2 when the
// configuration cannot be loaded.
//
// Usage:
//
//	validate [--config PATH] [--json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/provisionwatch/provisionwatch/internal/config"
	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/internal/report"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

func main() {
	configPath := flag.String("config", "", "configuration file (default: $"+config.EnvConfigPath+" or built-in fallback)")
	jsonOutput := flag.Bool("json", false, "output the report as JSON")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var (
		doc *config.Config
		err error
	)
	if *configPath != "" {
		if err := config.ValidateFileExists(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "--config: %v\n", err)
			os.Exit(2)
		}
		doc, err = config.LoadFile(*configPath, logger)
	} else {
		doc, err = config.Load(logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration failed: %v\n", err)
		os.Exit(2)
	}

	snap := inspect.CheckConfig(doc, logger)
	rep := report.FromSnapshot(snap, doc, logger)

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
	} else {
		printReport(rep)
	}

	if rep.Summary.Invalid > 0 {
		os.Exit(1)
	}
}

func printReport(rep *report.Report) {
	fmt.Printf("=== %s ===\n", rep.Title)
	for _, sec := range rep.Sections {
		name := sec.Name
		if sec.Icon != "" {
			name = sec.Icon + " " + name
		}
		fmt.Printf("\n%s\n", name)
		for _, c := range sec.Checks {
			icon := "?"
			switch c.Status {
			case report.StatusPass:
				icon = "✓"
			case report.StatusFail:
				icon = "✗"
			case report.StatusWarning:
				icon = "!"
			}
			fmt.Printf("  [%s] %s: %s\n", icon, c.Label, c.Status)
			if c.Detail != "" && c.Status != report.StatusPass {
				fmt.Printf("      → %s\n", c.Detail)
			}
		}
	}
	fmt.Printf("\nSummary: %d valid, %d invalid, %d warnings, %d unknown\n",
		rep.Summary.Valid, rep.Summary.Invalid, rep.Summary.Warnings, rep.Summary.Errors)
	fmt.Printf("Score: %s %.0f%% (%s)\n", rep.Band.Icon, rep.Score*100, rep.Band.Label)
}
