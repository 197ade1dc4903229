package scheduler

import (
	"errors"
	"fmt"
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	deps         map[string][]string
	parses       map[string]int
	posts        map[string]int
	resolves     map[string]int
	lastSyntax   map[string]string
	failParse    map[string]bool
	panicResolve map[string]bool
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		deps:         make(map[string][]string),
		parses:       make(map[string]int),
		posts:        make(map[string]int),
		resolves:     make(map[string]int),
		lastSyntax:   make(map[string]string),
		failParse:    make(map[string]bool),
		panicResolve: make(map[string]bool),
	}
}

func (a *fakeAnalyzer) Parse(m *module.Module) (ports.ParseResult, error) {
	a.parses[m.Name]++
	if a.failParse[m.Name] {
		return ports.ParseResult{}, errors.New("syntax exploded")
	}
	a.lastSyntax[m.Name] = m.Content
	return ports.ParseResult{Syntax: m.Content, Dependencies: a.deps[m.Name]}, nil
}

func (a *fakeAnalyzer) PostProcessTypes(m *module.Module) error {
	a.posts[m.Name]++
	return nil
}

func (a *fakeAnalyzer) Resolve(m *module.Module) ([]module.Diagnostic, error) {
	a.resolves[m.Name]++
	if a.panicResolve[m.Name] {
		panic("resolver bug")
	}
	return nil, nil
}

func (a *fakeAnalyzer) total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

type fakeLoader struct {
	loads int
}

func (l *fakeLoader) Load(path string) (string, bool, error) {
	l.loads++
	return "// " + path, true, nil
}

type fakeGate struct {
	ready bool
}

func (g *fakeGate) HasTypes() bool { return g.ready }

type fakePublisher struct {
	published map[string]int
}

func (p *fakePublisher) PublishModule(m *module.Module) {
	p.published[m.Name]++
}

type harness struct {
	loop      *loop.Loop
	registry  *module.Registry
	gate      *fakeGate
	analyzer  *fakeAnalyzer
	loader    *fakeLoader
	publisher *fakePublisher
	sched     *Scheduler
}

func newHarness(t *testing.T, ready bool) *harness {
	t.Helper()
	h := &harness{
		loop:      loop.NewVirtual(time.Unix(0, 0)),
		registry:  module.NewRegistry(),
		gate:      &fakeGate{ready: ready},
		analyzer:  newFakeAnalyzer(),
		loader:    &fakeLoader{},
		publisher: &fakePublisher{published: make(map[string]int)},
	}
	h.sched = New(DefaultConfig(), h.loop, h.registry, h.gate, h.analyzer, h.loader, h.publisher)
	return h
}

func (h *harness) addModules(n int) []*module.Module {
	out := make([]*module.Module, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Game.M%03d", i)
		out = append(out, h.registry.GetOrCreate(name, "/ws/"+name+".as", ""))
	}
	return out
}

func (h *harness) enqueueAll(stage Stage, mods []*module.Module) {
	for _, m := range mods {
		h.sched.Enqueue(stage, m)
	}
}

func (h *harness) drain() {
	h.loop.Advance(5 * time.Second)
}

func TestScheduler_LoadDrainsBeforeAnyParse(t *testing.T) {
	h := newHarness(t, true)
	h.enqueueAll(StageLoad, h.addModules(450))

	want := []int{200, 200, 50}
	for i, n := range want {
		r := h.sched.Tick()
		assert.Equal(t, StageLoad, r.Stage, "tick %d", i)
		assert.Equal(t, n, r.Processed, "tick %d", i)
		assert.Equal(t, 0, h.analyzer.total(h.analyzer.parses), "tick %d", i)
	}
	assert.Equal(t, 450, h.loader.loads)

	r := h.sched.Tick()
	assert.Equal(t, StageParse, r.Stage)
	assert.Equal(t, 10, r.Processed)
	assert.Equal(t, 10, h.analyzer.total(h.analyzer.parses))
}

func TestScheduler_DrainsToIdle(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(30)
	idleCalls := 0
	h.sched.OnIdle(func() { idleCalls++ })

	h.enqueueAll(StageLoad, mods)
	assert.False(t, h.sched.Idle())

	h.drain()
	assert.True(t, h.sched.Idle())
	assert.True(t, h.sched.InitialParseDone())
	assert.True(t, h.sched.Ready())
	assert.Equal(t, 1, idleCalls)
	for _, m := range mods {
		assert.Equal(t, module.StateResolved, m.State(), m.Name)
		assert.Equal(t, 1, h.publisher.published[m.Name], m.Name)
	}
	for stage, depth := range h.sched.Depths() {
		assert.Zero(t, depth, stage.String())
	}
	assert.Equal(t, 0, h.loop.Pending())
}

func TestScheduler_ReenqueueResolvedIsNoop(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(3)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	for _, stage := range []Stage{StageLoad, StageParse, StagePostProcessTypes, StageResolve} {
		h.sched.Enqueue(stage, mods[0])
	}
	h.drain()

	assert.Equal(t, 1, h.analyzer.parses[mods[0].Name])
	assert.Equal(t, 1, h.analyzer.posts[mods[0].Name])
	assert.Equal(t, 1, h.analyzer.resolves[mods[0].Name])
	assert.Equal(t, 3, h.loader.loads)
	assert.True(t, h.sched.Idle())
}

func TestScheduler_DedupesPendingEntries(t *testing.T) {
	h := newHarness(t, true)
	m := h.addModules(1)[0]
	h.sched.Enqueue(StageLoad, m)
	h.sched.Enqueue(StageLoad, m)
	assert.Equal(t, 1, h.sched.Depths()[StageLoad])
}

func TestScheduler_TypeStagesGatedUntilTypesReady(t *testing.T) {
	h := newHarness(t, false)
	mods := h.addModules(5)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	assert.False(t, h.sched.Idle())
	assert.Equal(t, 5, h.sched.Depths()[StagePostProcessTypes])
	assert.Equal(t, 0, h.analyzer.total(h.analyzer.posts))
	assert.Equal(t, 0, h.analyzer.total(h.analyzer.resolves))
	for _, m := range mods {
		assert.Equal(t, module.StateParsed, m.State())
	}

	r := h.sched.Tick()
	assert.True(t, r.Gated)
	assert.Equal(t, StagePostProcessTypes, r.Stage)
	assert.Zero(t, r.Processed)

	h.gate.ready = true
	h.drain()
	assert.True(t, h.sched.Idle())
	for _, m := range mods {
		assert.Equal(t, module.StateResolved, m.State())
	}
}

func TestScheduler_CanResolveRequiresLoadQueueEmpty(t *testing.T) {
	h := newHarness(t, true)
	assert.True(t, h.sched.CanResolve())
	h.sched.Enqueue(StageLoad, h.addModules(1)[0])
	assert.False(t, h.sched.CanResolve())
}

func TestScheduler_PromoteKeepsQueuePosition(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(3)
	h.enqueueAll(StageLoad, mods)
	target := mods[2]

	resolved := h.sched.Promote(target)
	assert.False(t, resolved, "load queue still pending")
	assert.True(t, target.Parsed())
	assert.Equal(t, 3, h.sched.Depths()[StageLoad])

	h.drain()
	assert.Equal(t, 1, h.analyzer.parses[target.Name])
	assert.Equal(t, module.StateResolved, target.State())
}

func TestScheduler_PromoteResolvesWhenReady(t *testing.T) {
	h := newHarness(t, true)
	base := h.registry.GetOrCreate("Base", "/ws/Base.as", "")
	user := h.registry.GetOrCreate("User", "/ws/User.as", "")
	h.analyzer.deps["User"] = []string{"Base", "Missing"}

	require.True(t, h.sched.Promote(user))
	assert.Equal(t, module.StateResolved, user.State())
	assert.True(t, base.TypesPostProcessed())
	assert.False(t, base.Resolved())
	assert.Equal(t, 1, h.publisher.published["User"])
	assert.True(t, h.sched.Idle())
}

func TestScheduler_DebounceCoalescesEdits(t *testing.T) {
	h := newHarness(t, true)
	m := h.addModules(1)[0]
	h.sched.Enqueue(StageLoad, m)
	h.drain()
	require.Equal(t, 1, h.analyzer.parses[m.Name])

	for i := 0; i < 10; i++ {
		h.sched.ContentChanged(m, fmt.Sprintf("edit %d", i))
		assert.Equal(t, module.StateLoaded, m.State())
		h.loop.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, 1, h.analyzer.parses[m.Name])

	h.loop.Advance(200 * time.Millisecond)
	assert.Equal(t, 2, h.analyzer.parses[m.Name])
	assert.Equal(t, "edit 9", h.analyzer.lastSyntax[m.Name])
	assert.Equal(t, module.StateResolved, m.State())
	assert.False(t, m.HasPendingDebounce())
}

func TestScheduler_DebounceRequeuesDependents(t *testing.T) {
	h := newHarness(t, true)
	base := h.registry.GetOrCreate("Base", "/ws/Base.as", "")
	user := h.registry.GetOrCreate("User", "/ws/User.as", "")
	h.analyzer.deps["User"] = []string{"Base"}
	h.enqueueAll(StageLoad, []*module.Module{base, user})
	h.drain()
	require.Equal(t, 1, h.analyzer.resolves["User"])

	h.sched.ContentChanged(base, "class Base {}")
	h.loop.Advance(100 * time.Millisecond)
	assert.True(t, base.Resolved())
	assert.False(t, user.Resolved())
	assert.Equal(t, 1, h.sched.Depths()[StageResolve])

	h.drain()
	assert.True(t, user.Resolved())
	assert.Equal(t, 2, h.analyzer.resolves["User"])
	assert.Equal(t, 1, h.analyzer.parses["User"])
}

func TestScheduler_DebounceDefersWhenNotReady(t *testing.T) {
	h := newHarness(t, false)
	m := h.addModules(1)[0]
	h.sched.ContentChanged(m, "text")
	h.loop.Advance(150 * time.Millisecond)

	assert.True(t, m.Parsed())
	assert.False(t, m.TypesPostProcessed())
	assert.Equal(t, 1, h.sched.Depths()[StagePostProcessTypes])
	assert.False(t, h.sched.Idle())
}

func TestScheduler_ReResolveClearsOnlyResolved(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(45)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	h.sched.ReResolveAllModules()
	assert.Equal(t, SweepReResolve, h.sched.ActiveSweep())
	for _, m := range mods {
		assert.Equal(t, module.StateTypesPostProcessed, m.State())
	}

	h.loop.Advance(time.Millisecond)
	resolved := 0
	for _, m := range mods {
		if m.Resolved() {
			resolved++
		}
	}
	assert.Equal(t, 20, resolved)

	h.drain()
	assert.Equal(t, SweepNone, h.sched.ActiveSweep())
	for _, m := range mods {
		assert.Equal(t, module.StateResolved, m.State())
		assert.Equal(t, 1, h.analyzer.parses[m.Name])
		assert.Equal(t, 2, h.analyzer.resolves[m.Name])
	}
}

func countResolved(mods []*module.Module) int {
	n := 0
	for _, m := range mods {
		if m.Resolved() {
			n++
		}
	}
	return n
}

func TestScheduler_ReResolveSweepPausesWhileBusy(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(45)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	h.sched.ReResolveAllModules()
	h.loop.Advance(time.Millisecond)
	require.Equal(t, 20, countResolved(mods))
	sw := h.sched.sweep
	require.NotNil(t, sw)

	late := h.registry.GetOrCreate("Game.Late", "/ws/Game.Late.as", "")
	h.sched.Enqueue(StageLoad, late)
	require.False(t, h.sched.Idle())

	h.sched.stepSweep(sw)
	assert.Equal(t, 20, sw.index)
	assert.Equal(t, 20, countResolved(mods))

	h.drain()
	assert.Equal(t, SweepNone, h.sched.ActiveSweep())
	assert.True(t, late.Resolved())
	for _, m := range mods {
		assert.Equal(t, 2, h.analyzer.resolves[m.Name], m.Name)
	}
}

func TestScheduler_ReResolveSweepWaitsForTypes(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(45)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	h.sched.ReResolveAllModules()
	h.loop.Advance(time.Millisecond)
	require.Equal(t, 20, countResolved(mods))

	h.gate.ready = false
	h.loop.Advance(10 * time.Millisecond)
	assert.Equal(t, 20, countResolved(mods))
	assert.Equal(t, SweepReResolve, h.sched.ActiveSweep())
	assert.Equal(t, 20, h.sched.sweep.index)

	h.gate.ready = true
	h.drain()
	assert.Equal(t, SweepNone, h.sched.ActiveSweep())
	for _, m := range mods {
		assert.Equal(t, module.StateResolved, m.State(), m.Name)
		assert.Equal(t, 2, h.analyzer.resolves[m.Name], m.Name)
	}
}

func TestScheduler_SweepDeferredWhileBusy(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(2)
	h.enqueueAll(StageLoad, mods)

	h.sched.ReResolveAllModules()
	assert.Equal(t, SweepNone, h.sched.ActiveSweep())
	assert.Equal(t, SweepReResolve, h.sched.PendingSweep())

	h.sched.DirtyAllDiagnostics()
	assert.Equal(t, SweepReResolve, h.sched.PendingSweep())

	h.drain()
	assert.Equal(t, SweepNone, h.sched.PendingSweep())
	assert.Equal(t, SweepNone, h.sched.ActiveSweep())
	for _, m := range mods {
		assert.True(t, m.Resolved())
	}
}

func TestScheduler_DirtyRepublishesResolved(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(4)
	h.enqueueAll(StageLoad, mods)
	h.drain()

	h.sched.DirtyAllDiagnostics()
	h.sched.DirtyAllDiagnostics()
	h.drain()
	for _, m := range mods {
		assert.Equal(t, 2, h.publisher.published[m.Name], m.Name)
	}
}

func TestScheduler_AnalyzerFailureDoesNotBlockBatch(t *testing.T) {
	h := newHarness(t, true)
	mods := h.addModules(3)
	h.analyzer.failParse[mods[0].Name] = true
	h.analyzer.panicResolve[mods[1].Name] = true
	h.enqueueAll(StageLoad, mods)
	h.drain()

	for _, m := range mods {
		assert.Equal(t, module.StateResolved, m.State(), m.Name)
	}
	assert.Len(t, mods[0].StageFailures(), 1)
	assert.Len(t, mods[1].StageFailures(), 1)
	assert.Empty(t, mods[2].StageFailures())
	assert.True(t, h.sched.Idle())
}

func TestScheduler_ReentrantTickSkipped(t *testing.T) {
	h := newHarness(t, true)
	h.sched.ticking = true
	r := h.sched.Tick()
	assert.Equal(t, StageNone, r.Stage)
}
