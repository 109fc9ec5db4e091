// Package vcsdiff queries git for the set of files changed relative to a
// reference (or the working tree alone), classifying each candidate by
// whether it still exists on disk.
//
// The subprocess-execution and status-line-parsing style is grounded on a
// reference git-porcelain-driving tool in the example pack; see
// DESIGN.md.
package vcsdiff

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/craigvandotcom/vitest-affected-go/internal/diagnostic"
	"github.com/craigvandotcom/vitest-affected-go/internal/normalize"
)

// ChangeSet is the result of a single detect call: canonical paths,
// partitioned by whether they currently exist on disk.
type ChangeSet struct {
	Changed []string
	Deleted []string
}

// candidate is one path surfaced by a git query. Final classification is
// by disk existence (§4.2 step 5); a candidate carries no status code of
// its own since a renamed path's old and new names are emitted as two
// separate candidates and disk existence alone tells them apart.
type candidate struct {
	path string
}

// Detect queries git for the union of changed files visible from rootDir.
// When ref is non-empty, committed changes between ref and HEAD are
// included and a shallow-checkout is treated as a hard failure. With no
// ref, only staged and unstaged/untracked state is considered.
//
// A root that is not inside a git working tree is a soft failure: Detect
// returns an empty ChangeSet and records a warning on diag, letting the
// orchestrator fall back to the full suite. Any other subordinate git
// failure is likewise swallowed into an empty ChangeSet, except the
// explicit shallow-history case, which is returned as an error wrapped
// in *diagnostic.FallbackError with Kind diagnostic.Hard.
func Detect(ctx context.Context, rootDir string, ref string, diag *diagnostic.Collector) (ChangeSet, error) {
	if !insideWorkTree(ctx, rootDir) {
		diag.Warn("%s is not inside a git working tree; running full suite", rootDir)
		return ChangeSet{}, nil
	}

	if ref != "" {
		if shallow := isShallowRepo(ctx, rootDir); shallow {
			return ChangeSet{}, diagnostic.Wrap(diagnostic.Hard, "shallow-history",
				fmt.Errorf("cannot diff against ref %q in a shallow checkout", ref))
		}
	}

	repoRoot, err := revParseShowToplevel(ctx, rootDir)
	if err != nil {
		diag.Warn("could not determine repository root: %v; running full suite", err)
		return ChangeSet{}, nil
	}

	queries := buildQueries(ref)

	results := make([][]candidate, len(queries))
	group, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		group.Go(func() error {
			lines, err := gitIn(gctx, repoRoot, q.args...)
			if err != nil {
				// Any failed query fails the whole detection, which Detect
				// turns into an empty ChangeSet: a soft fallback, not a hard
				// error, per §4.2.
				return err
			}
			results[i] = parseQueryOutput(lines, q.kind)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		diag.Warn("change detection failed: %v; running full suite", err)
		return ChangeSet{}, nil
	}

	return classify(repoRoot, results), nil
}

// queryKind marks whether a query's output is a plain path list (no
// status column, always a changed candidate) or a git name-status
// listing (status-coded, handled by parseNameStatus's A/C/M/D/R switch).
type queryKind int

const (
	kindNameStatus queryKind = iota
	kindPathList
)

type query struct {
	args []string
	kind queryKind
}

// buildQueries returns the concurrent query set of §4.2 step 4, in the
// fixed order that the staged-changed-before-staged-deleted tie-break
// depends on: a single "git diff --cached --name-status -M" line
// already carries both the staged additions/copies/modifications/
// renames (status A/C/M, and the new-name side of R) and the staged
// deletions (status D, and the old-name side of R) that the spec
// describes as two candidate sources, so one query serves both.
func buildQueries(ref string) []query {
	var queries []query
	if ref != "" {
		queries = append(queries, query{
			args: []string{"diff", "--name-status", "--diff-filter=ACMRD", "-M", ref, "HEAD"},
			kind: kindNameStatus,
		})
	}
	queries = append(queries,
		query{args: []string{"diff", "--cached", "--name-status", "--diff-filter=ACMRD", "-M"}, kind: kindNameStatus},
		query{args: []string{"diff", "--name-status", "--diff-filter=ACMRD", "-M"}, kind: kindNameStatus},
		query{args: []string{"ls-files", "--others", "--exclude-standard"}, kind: kindPathList},
	)
	return queries
}

func parseQueryOutput(out []byte, kind queryKind) []candidate {
	var candidates []candidate
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if kind == kindPathList {
			candidates = append(candidates, candidate{path: line})
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		code := fields[0]
		if strings.HasPrefix(code, "R") && len(fields) >= 3 {
			// Rename: emit both the old name (will classify as deleted,
			// since it no longer exists under that name) and the new
			// name (will classify as changed).
			candidates = append(candidates, candidate{path: fields[1]}, candidate{path: fields[2]})
			continue
		}
		candidates = append(candidates, candidate{path: fields[1]})
	}
	return candidates
}

// classify resolves every candidate path to a canonical path relative to
// repoRoot, deduplicates in first-seen order across the fixed query
// order returned by buildQueries (which already places staged-changed
// ahead of staged-deleted, resolving the rename tie-break of §4.2 step
// 6 by construction), and partitions the result by disk existence per
// step 5.
func classify(repoRoot string, results [][]candidate) ChangeSet {
	seen := make(map[string]struct{})
	var order []string

	for _, candidates := range results {
		for _, c := range candidates {
			abs := normalize.Normalize(filepath.ToSlash(filepath.Join(repoRoot, c.path)))
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			order = append(order, abs)
		}
	}

	var set ChangeSet
	for _, path := range order {
		if fileExists(path) {
			set.Changed = append(set.Changed, path)
		} else {
			set.Deleted = append(set.Deleted, path)
		}
	}
	return set
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func insideWorkTree(ctx context.Context, dir string) bool {
	out, err := gitIn(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

func isShallowRepo(ctx context.Context, dir string) bool {
	out, err := gitIn(ctx, dir, "rev-parse", "--is-shallow-repository")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

func revParseShowToplevel(ctx context.Context, dir string) (string, error) {
	out, err := gitIn(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return "", errors.New("git rev-parse --show-toplevel returned empty output")
	}
	return root, nil
}

// gitIn runs a git subcommand with dir as the subprocess working
// directory.
func gitIn(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}
