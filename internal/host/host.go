// Package host models the host test runner's plugin contract (§6): the
// project config shape the orchestrator reads, the reporter-chain slot
// it appends into, and the watch-mode filter registration entry point.
// None of it talks to a real JS/TS process — the CLI's "select"
// subcommand receives an equivalent JSON snapshot of this shape from the
// host's own plugin glue (out of scope per spec.md §1), and a fake
// implementation here lets the orchestrator be tested without one.
package host

// ProjectConfig is the subset of the host project's config the
// orchestrator reads, per §6's "Inputs consumed from the host runner".
type ProjectConfig struct {
	RootDir        string
	IncludePattern []string
	ExcludePattern []string
	SetupFiles     []string
	Watch          bool
}

// Project is the current test project the orchestrator configures.
// SetInclude replaces its include list, as §4.7 step 18 does.
type Project interface {
	Config() ProjectConfig
	SetInclude(paths []string)
}

// Master exposes the project list and the reporter chain the
// orchestrator installs into. "Master" matches the host runner's own
// vocabulary for the top-level controller object (§6: "the master
// object").
type Master interface {
	Projects() []Project
	Reporters() *ReporterSlot
	RegisterWatchFilter(predicate func(testPath string) bool)
}

// ModuleEndReporter receives the two hooks the runtime-edge reporter
// implements (§4.5), kept as an interface so the orchestrator does not
// depend on *reporter.Reporter's concrete type.
type ModuleEndReporter interface {
	OnTestModuleEnd(testPath string, imports map[string]float64)
	OnTestRunEnd(reason string)
}

// ReporterSlot models the "reporter installation subtlety" of §4.5: the
// host's reporter list is reassigned after plugin configuration, so a
// plain append at configure-time can be silently dropped. When the host
// supports the property-setter interception, ReporterSlot remembers
// every installed reporter and re-appends it on every future list
// replacement. A host that cannot support interception (e.g. a test
// harness backed by a plain slice) falls back to a direct, one-time
// append: the installed reporter will not survive a later SetList.
type ReporterSlot struct {
	canIntercept bool
	list         []ModuleEndReporter
	installed    []ModuleEndReporter
}

// NewReporterSlot creates a slot seeded with the host's current reporter
// list. canIntercept reports whether the host exposes a property-setter
// hook the orchestrator can intercept; when false, Install degrades to
// the direct-append fallback of §4.5.
func NewReporterSlot(initial []ModuleEndReporter, canIntercept bool) *ReporterSlot {
	return &ReporterSlot{canIntercept: canIntercept, list: initial}
}

// Install appends r to the current list. If interception is supported,
// r is also remembered so every future SetList re-appends it.
func (s *ReporterSlot) Install(r ModuleEndReporter) {
	s.list = append(s.list, r)
	if s.canIntercept {
		s.installed = append(s.installed, r)
	}
}

// SetList simulates the host reassigning its reporter list (e.g. after
// plugin configuration finishes). Every reporter installed through
// Install while interception was supported is re-appended automatically.
func (s *ReporterSlot) SetList(list []ModuleEndReporter) {
	s.list = append(append([]ModuleEndReporter(nil), list...), s.installed...)
}

// List returns the reporter slot's current contents.
func (s *ReporterSlot) List() []ModuleEndReporter {
	return s.list
}
