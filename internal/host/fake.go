package host

// FakeProject is a test double for Project.
type FakeProject struct {
	Cfg     ProjectConfig
	Include []string
}

func (p *FakeProject) Config() ProjectConfig { return p.Cfg }

func (p *FakeProject) SetInclude(paths []string) { p.Include = paths }

// FakeMaster is a test double for Master whose reporter list is a plain
// slice. NewFakeMaster's interceptable flag chooses whether its slot
// models the setter interception or only the direct-append fallback.
type FakeMaster struct {
	Project     *FakeProject
	Slot        *ReporterSlot
	WatchFilter func(testPath string) bool
}

// NewFakeMaster builds a FakeMaster. interceptable controls whether the
// reporter slot supports the property-setter interception of §4.5, or
// only the plain-append fallback.
func NewFakeMaster(project *FakeProject, interceptable bool) *FakeMaster {
	return &FakeMaster{Project: project, Slot: NewReporterSlot(nil, interceptable)}
}

func (m *FakeMaster) Projects() []Project {
	return []Project{m.Project}
}

func (m *FakeMaster) Reporters() *ReporterSlot {
	return m.Slot
}

func (m *FakeMaster) RegisterWatchFilter(predicate func(testPath string) bool) {
	m.WatchFilter = predicate
}

// ReplaceReporterList simulates the host reassigning its entire reporter
// list, as happens after plugin configuration (§4.5, "Reporter
// installation subtlety").
func (m *FakeMaster) ReplaceReporterList(list []ModuleEndReporter) {
	m.Slot.SetList(list)
}
