package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/craigvandotcom/vitest-affected-go/internal/cache"
)

// recordRequest mirrors the shape the runtime-edge reporter's sink emits at
// run end (internal/reporter.Sink): module path -> set of test paths that
// imported it. Used to replay a snapshot captured outside this process.
type recordRequest struct {
	RootDir  string              `json:"rootDir"`
	CacheDir string              `json:"cacheDir,omitempty"`
	Edges    map[string][]string `json:"edges"`
}

func runRecord(args []string) int {
	if len(args) != 0 {
		fmt.Fprintf(os.Stderr, "record: unknown flag %s\n", args[0])
		return 1
	}
	if err := doRecord(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "record: %v\n", err)
		return 1
	}
	return 0
}

// doRecord reads a recordRequest from r and merges it into the on-disk
// cache at the resolved cache directory.
func doRecord(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var req recordRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid JSON request: %w", err)
	}

	cacheDir := req.CacheDir
	if cacheDir == "" {
		if req.RootDir == "" {
			return fmt.Errorf("rootDir or cacheDir is required")
		}
		cacheDir = filepath.Join(req.RootDir, ".vitest-affected")
	}

	newEdges := make(map[string]map[string]struct{}, len(req.Edges))
	for module, tests := range req.Edges {
		set := make(map[string]struct{}, len(tests))
		for _, t := range tests {
			set[t] = struct{}{}
		}
		newEdges[module] = set
	}

	loadResult := cache.Load(cacheDir)
	reverse := loadResult.Reverse
	if reverse == nil {
		reverse = cache.ReverseMap{}
	}
	cache.MergeRunEdges(reverse, newEdges)

	if err := cache.Save(cacheDir, reverse); err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	return nil
}
