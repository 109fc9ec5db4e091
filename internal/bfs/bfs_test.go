package bfs

import (
	"reflect"
	"testing"
)

func edge(m ReverseMap, source, test string) {
	if m[source] == nil {
		m[source] = make(map[string]struct{})
	}
	m[source][test] = struct{}{}
}

func isTest(path string) bool {
	return len(path) >= 5 && path[len(path)-5:] == ".test"
}

func TestAffectedTestsLinearChain(t *testing.T) {
	// a.ts -> b.ts -> c.ts, tests/a.test imports a.ts (transitively b, c)
	reverse := ReverseMap{}
	edge(reverse, "a.ts", "tests/a.test")
	edge(reverse, "b.ts", "tests/a.test")
	edge(reverse, "c.ts", "tests/a.test")

	got := AffectedTests([]string{"c.ts"}, reverse, isTest)
	want := []string{"tests/a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AffectedTests() = %v, want %v", got, want)
	}
}

func TestAffectedTestsDiamond(t *testing.T) {
	// a.ts depends on b.ts and d.ts, both depend on c.ts; test runs a.ts.
	reverse := ReverseMap{}
	edge(reverse, "c.ts", "b.ts")
	edge(reverse, "c.ts", "d.ts")
	edge(reverse, "b.ts", "tests/a.test")
	edge(reverse, "d.ts", "tests/a.test")

	got := AffectedTests([]string{"c.ts"}, reverse, isTest)
	want := []string{"tests/a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AffectedTests() = %v, want %v (deduplicated via both paths)", got, want)
	}
}

func TestAffectedTestsCircularImports(t *testing.T) {
	// a.ts <-> b.ts reverse edges forming a cycle; must terminate.
	reverse := ReverseMap{}
	edge(reverse, "a.ts", "b.ts")
	edge(reverse, "b.ts", "a.ts")
	edge(reverse, "a.ts", "tests/a.test")

	done := make(chan []string, 1)
	go func() {
		done <- AffectedTests([]string{"a.ts"}, reverse, isTest)
	}()
	select {
	case got := <-done:
		want := []string{"tests/a.test"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("AffectedTests() = %v, want %v", got, want)
		}
	}
}

func TestAffectedTestsSortedAndDeduped(t *testing.T) {
	reverse := ReverseMap{}
	edge(reverse, "shared.ts", "tests/z.test")
	edge(reverse, "shared.ts", "tests/a.test")
	edge(reverse, "other.ts", "tests/a.test")

	got := AffectedTests([]string{"shared.ts", "other.ts"}, reverse, isTest)
	want := []string{"tests/a.test", "tests/z.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AffectedTests() = %v, want %v", got, want)
	}
}

func TestAffectedTestsEmptySeeds(t *testing.T) {
	reverse := ReverseMap{}
	edge(reverse, "a.ts", "tests/a.test")

	got := AffectedTests(nil, reverse, isTest)
	if len(got) != 0 {
		t.Errorf("AffectedTests(nil) = %v, want empty", got)
	}
}

func TestAffectedTestsSeedIsTestFile(t *testing.T) {
	reverse := ReverseMap{}
	got := AffectedTests([]string{"tests/direct.test"}, reverse, isTest)
	want := []string{"tests/direct.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AffectedTests() = %v, want %v", got, want)
	}
}
