package reporter

import (
	"reflect"
	"testing"
)

func TestOnTestModuleEndRecordsEdgeUnderRoot(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{
		"/proj/src/util.ts": 1.2,
	})
	r.OnTestRunEnd("pass")

	want := map[string]map[string]struct{}{
		"/proj/src/util.ts": {"/proj/src/a.test.ts": {}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOnTestModuleEndSkipsBeforeRootDirSet(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{"/proj/src/util.ts": 1})
	r.OnTestRunEnd("pass")

	if len(got) != 0 {
		t.Errorf("expected no edges recorded before SetRootDir, got %v", got)
	}
}

func TestOnTestModuleEndSkipsTestModuleItself(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{"/proj/src/a.test.ts": 1})
	r.OnTestRunEnd("pass")

	if len(got) != 0 {
		t.Errorf("expected self-import to be skipped, got %v", got)
	}
}

func TestOnTestModuleEndSkipsNodeModules(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{
		"/proj/node_modules/react/index.js": 1,
	})
	r.OnTestRunEnd("pass")

	if len(got) != 0 {
		t.Errorf("expected node_modules import to be skipped, got %v", got)
	}
}

func TestOnTestModuleEndSkipsPreBundledID(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{
		"/@id/react": 1,
	})
	r.OnTestRunEnd("pass")

	if len(got) != 0 {
		t.Errorf("expected pre-bundled id to be skipped, got %v", got)
	}
}

func TestOnTestModuleEndSkipsOutsideRoot(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{
		"/other/src/util.ts": 1,
	})
	r.OnTestRunEnd("pass")

	if len(got) != 0 {
		t.Errorf("expected import outside rootDir to be skipped, got %v", got)
	}
}

func TestOnTestRunEndInterruptedDiscardsWithoutEmitting(t *testing.T) {
	emitted := false
	r := New(func(map[string]map[string]struct{}) { emitted = true })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{"/proj/src/util.ts": 1})
	r.OnTestRunEnd("interrupted")

	if emitted {
		t.Error("expected interrupted run to not emit")
	}

	// The accumulator must also have been cleared, not merely left unemitted.
	var got map[string]map[string]struct{}
	r.sink = func(edges map[string]map[string]struct{}) { got = edges }
	r.OnTestRunEnd("pass")
	if len(got) != 0 {
		t.Errorf("expected accumulator cleared after interrupted run, got %v", got)
	}
}

func TestOnTestRunEndClearsAccumulatorAcrossRuns(t *testing.T) {
	var calls []map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { calls = append(calls, edges) })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{"/proj/src/util.ts": 1})
	r.OnTestRunEnd("pass")

	r.OnTestModuleEnd("/proj/src/b.test.ts", map[string]float64{"/proj/src/other.ts": 1})
	r.OnTestRunEnd("pass")

	if len(calls) != 2 {
		t.Fatalf("expected 2 emitted snapshots, got %d", len(calls))
	}
	if _, ok := calls[1]["/proj/src/util.ts"]; ok {
		t.Error("expected second run's snapshot to not carry over the first run's edge")
	}
}

func TestOnTestRunEndSinkReceivesDefensiveCopy(t *testing.T) {
	var got map[string]map[string]struct{}
	r := New(func(edges map[string]map[string]struct{}) { got = edges })
	r.SetRootDir("/proj")

	r.OnTestModuleEnd("/proj/src/a.test.ts", map[string]float64{"/proj/src/util.ts": 1})
	r.OnTestRunEnd("pass")

	got["/proj/src/util.ts"]["/proj/src/mutated.ts"] = struct{}{}

	r.OnTestModuleEnd("/proj/src/c.test.ts", map[string]float64{"/proj/src/util.ts": 1})
	var second map[string]map[string]struct{}
	r.sink = func(edges map[string]map[string]struct{}) { second = edges }
	r.OnTestRunEnd("pass")

	if _, ok := second["/proj/src/util.ts"]["/proj/src/mutated.ts"]; ok {
		t.Error("expected mutation of a previously emitted snapshot to not leak into internal state")
	}
}
