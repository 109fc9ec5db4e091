package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/craigvandotcom/vitest-affected-go/internal/statsjournal"
)

type statsArgs struct {
	file   string
	root   string
	asJSON bool
}

// parseStatsArgs extracts the stats subcommand's flags.
func parseStatsArgs(args []string) (statsArgs, error) {
	var a statsArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--file":
			if i+1 >= len(args) {
				return a, fmt.Errorf("--file requires a value")
			}
			i++
			a.file = args[i]
		case "--root":
			if i+1 >= len(args) {
				return a, fmt.Errorf("--root requires a value")
			}
			i++
			a.root = args[i]
		case "--json":
			a.asJSON = true
		default:
			return a, fmt.Errorf("unknown flag %s", args[i])
		}
	}
	if a.file == "" && a.root == "" {
		return a, fmt.Errorf("--file or --root is required")
	}
	return a, nil
}

func runStats(args []string) int {
	a, err := parseStatsArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return 1
	}

	file := a.file
	if file == "" {
		file = filepath.Join(a.root, ".vitest-affected", "stats.jsonl")
	}

	entries, err := statsjournal.New(file).ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: failed to read %s: %v\n", file, err)
		return 1
	}

	if err := writeStats(os.Stdout, entries, a.asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return 1
	}
	return 0
}

func writeStats(w io.Writer, entries []statsjournal.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printStatsSummary(w, entries)
	return nil
}

func printStatsSummary(w io.Writer, entries []statsjournal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}

	byReason := make(map[string]int)
	var selective, fullSuite int
	var totalDuration float64
	for _, e := range entries {
		byReason[e.Reason]++
		totalDuration += e.DurationMs
		if e.Action == statsjournal.ActionSelective {
			selective++
		} else {
			fullSuite++
		}
	}

	fmt.Fprintf(w, "runs: %d (selective: %d, full-suite: %d)\n", len(entries), selective, fullSuite)
	fmt.Fprintf(w, "avg duration: %.1fms\n", totalDuration/float64(len(entries)))
	fmt.Fprintln(w, "by reason:")
	for reason, n := range byReason {
		if reason == "" {
			reason = "(none)"
		}
		fmt.Fprintf(w, "  %-28s %d\n", reason, n)
	}
}
