package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/craigvandotcom/vitest-affected-go/internal/config"
	"github.com/craigvandotcom/vitest-affected-go/internal/host"
	"github.com/craigvandotcom/vitest-affected-go/internal/orchestrator"
)

// selectRequest is the JSON shape the host runner's plugin glue writes on
// stdin: the current project's config shape plus the plugin options table
// of §6.
type selectRequest struct {
	RootDir        string          `json:"rootDir"`
	IncludePattern []string        `json:"includePattern"`
	ExcludePattern []string        `json:"excludePattern"`
	SetupFiles     []string        `json:"setupFiles"`
	Watch          bool            `json:"watch"`
	CacheDir       string          `json:"cacheDir,omitempty"`
	Options        json.RawMessage `json:"options,omitempty"`
}

// selectResponse is the JSON decision written back to stdout.
type selectResponse struct {
	Selective bool                `json:"selective"`
	Include   []string            `json:"include,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	CacheHit  bool                `json:"cacheHit"`
	Warnings  []string            `json:"warnings,omitempty"`
	Graph     map[string][]string `json:"graph,omitempty"`
}

type jsonProject struct {
	cfg     host.ProjectConfig
	include []string
}

func (p *jsonProject) Config() host.ProjectConfig { return p.cfg }
func (p *jsonProject) SetInclude(paths []string)  { p.include = paths }

type jsonMaster struct {
	project *jsonProject
	slot    *host.ReporterSlot
}

func (m *jsonMaster) Projects() []host.Project { return []host.Project{m.project} }
func (m *jsonMaster) Reporters() *host.ReporterSlot { return m.slot }
func (m *jsonMaster) RegisterWatchFilter(func(string) bool) {}

// parseSelectArgs recognizes the select subcommand's only flag.
func parseSelectArgs(args []string) (dumpGraph bool, err error) {
	for _, a := range args {
		switch a {
		case "--dump-graph":
			dumpGraph = true
		default:
			return false, fmt.Errorf("unknown flag %s", a)
		}
	}
	return dumpGraph, nil
}

func runSelect(args []string) int {
	dumpGraph, err := parseSelectArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "select: %v\n", err)
		return 1
	}
	if err := doSelect(os.Stdin, os.Stdout, dumpGraph); err != nil {
		fmt.Fprintf(os.Stderr, "select: %v\n", err)
		return 1
	}
	return 0
}

// doSelect reads a selectRequest from r, runs the orchestrator once, and
// writes the resulting selectResponse to w.
func doSelect(r io.Reader, w io.Writer, dumpGraph bool) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var req selectRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("invalid JSON request: %w", err)
	}
	if req.RootDir == "" {
		return fmt.Errorf("rootDir is required")
	}

	opts := config.DefaultConfig()
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return fmt.Errorf("invalid options: %w", err)
		}
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	cacheDir := req.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(req.RootDir, ".vitest-affected")
	}

	project := &jsonProject{cfg: host.ProjectConfig{
		RootDir:        req.RootDir,
		IncludePattern: req.IncludePattern,
		ExcludePattern: req.ExcludePattern,
		SetupFiles:     req.SetupFiles,
		Watch:          req.Watch,
	}}
	master := &jsonMaster{project: project, slot: host.NewReporterSlot(nil, true)}

	o := orchestrator.New(opts, cacheDir, orchestrator.DefaultDeps())
	decision, err := o.Run(context.Background(), master)
	if err != nil {
		return err
	}

	resp := selectResponse{
		Selective: decision.Selective,
		Include:   project.include,
		Reason:    decision.Reason,
		CacheHit:  decision.CacheHit,
	}
	for _, l := range o.Diagnostics().Lines() {
		resp.Warnings = append(resp.Warnings, l.String())
	}
	if dumpGraph {
		resp.Graph = flattenGraph(decision.Graph)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

func flattenGraph(graph map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(graph))
	for module, tests := range graph {
		list := make([]string, 0, len(tests))
		for t := range tests {
			list = append(list, t)
		}
		sort.Strings(list)
		out[module] = list
	}
	return out
}
