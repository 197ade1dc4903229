// Package scheduler drives modules through the analysis stages.
//
// Work is spread over four queues (load, parse, post-process types,
// resolve). Each tick processes one bounded batch from the first stage that
// has work and re-arms itself on the loop, so interactive requests posted to
// the same loop are never starved for long. The type-dependent stages are
// gated on the host type database being ready and on loading being finished.
//
// Everything here runs on the loop goroutine.
package scheduler

import (
	"fmt"
	"log/slog"
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/observability"
	"time"
)

type Config struct {
	LoadBatch        int
	ParseBatch       int
	PostProcessBatch int
	ResolveBatch     int
	TickInterval     time.Duration
	SweepBatch       int
	SweepInterval    time.Duration
	Debounce         time.Duration
	Dedupe           bool
}

func DefaultConfig() Config {
	return Config{
		LoadBatch:        200,
		ParseBatch:       10,
		PostProcessBatch: 50,
		ResolveBatch:     20,
		TickInterval:     time.Millisecond,
		SweepBatch:       20,
		SweepInterval:    time.Millisecond,
		Debounce:         100 * time.Millisecond,
		Dedupe:           true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LoadBatch <= 0 {
		c.LoadBatch = def.LoadBatch
	}
	if c.ParseBatch <= 0 {
		c.ParseBatch = def.ParseBatch
	}
	if c.PostProcessBatch <= 0 {
		c.PostProcessBatch = def.PostProcessBatch
	}
	if c.ResolveBatch <= 0 {
		c.ResolveBatch = def.ResolveBatch
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = def.SweepBatch
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	return c
}

// TypeGate reports whether the host type database is authoritative.
type TypeGate interface {
	HasTypes() bool
}

// Publisher receives a module whose script diagnostics should be (re)sent.
type Publisher interface {
	PublishModule(m *module.Module)
}

// TickReport describes what a single Tick did.
type TickReport struct {
	Stage     Stage
	Processed int
	Gated     bool
}

type Scheduler struct {
	cfg       Config
	loop      *loop.Loop
	registry  *module.Registry
	types     TypeGate
	analyzer  ports.Analyzer
	loader    ports.Loader
	publisher Publisher

	queues   [stageCount]*queue
	idle     bool
	ticking  bool
	tickTime *loop.Timer

	initialParseDone bool
	idleHooks        []func()

	sweep        *sweep
	pendingSweep SweepKind
}

func New(cfg Config, l *loop.Loop, registry *module.Registry, types TypeGate, analyzer ports.Analyzer, loader ports.Loader, publisher Publisher) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:       cfg,
		loop:      l,
		registry:  registry,
		types:     types,
		analyzer:  analyzer,
		loader:    loader,
		publisher: publisher,
		idle:      true,
	}
	for i := range s.queues {
		s.queues[i] = newQueue(cfg.Dedupe)
	}
	return s
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// SetDebounce changes the edit debounce for timers armed from now on.
func (s *Scheduler) SetDebounce(d time.Duration) {
	if d > 0 {
		s.cfg.Debounce = d
	}
}

func (s *Scheduler) Registry() *module.Registry {
	return s.registry
}

// Idle reports whether the tick loop is stopped because every queue is empty.
func (s *Scheduler) Idle() bool {
	return s.idle
}

// InitialParseDone reports whether the parse queue has drained at least once.
func (s *Scheduler) InitialParseDone() bool {
	return s.initialParseDone
}

// CanResolve reports whether type-dependent stages may run.
func (s *Scheduler) CanResolve() bool {
	return s.types.HasTypes() && s.queues[StageLoad].empty()
}

// Ready reports whether the workspace is fully parsed and types are ready.
func (s *Scheduler) Ready() bool {
	return s.CanResolve() && s.queues[StageParse].empty()
}

// Depths returns the number of pending modules per stage.
func (s *Scheduler) Depths() map[Stage]int {
	out := make(map[Stage]int, stageCount)
	for i, q := range s.queues {
		out[Stage(i)] = q.pending()
	}
	return out
}

// OnIdle registers fn to run every time the tick loop goes idle.
func (s *Scheduler) OnIdle(fn func()) {
	s.idleHooks = append(s.idleHooks, fn)
}

// Enqueue appends m to the given stage queue and restarts ticking if idle.
func (s *Scheduler) Enqueue(stage Stage, m *module.Module) {
	if stage < StageLoad || stage > StageResolve || m == nil {
		return
	}
	s.queues[stage].push(m)
	observability.QueueDepth.WithLabelValues(stage.String()).Set(float64(s.queues[stage].pending()))
	s.restart()
}

func (s *Scheduler) restart() {
	if !s.idle {
		return
	}
	s.idle = false
	s.armTick()
}

func (s *Scheduler) armTick() {
	if s.tickTime != nil {
		s.tickTime.Stop()
	}
	s.tickTime = s.loop.AfterFunc(s.cfg.TickInterval, func() {
		s.tickTime = nil
		s.Tick()
	})
}

// Tick processes one batch from the first non-empty stage, then either
// re-arms itself or goes idle. A reentrant call does nothing.
func (s *Scheduler) Tick() TickReport {
	if s.ticking {
		return TickReport{Stage: StageNone}
	}
	s.ticking = true
	report := s.runBatch()
	s.ticking = false

	if s.tickTime != nil {
		s.tickTime.Stop()
		s.tickTime = nil
	}
	if s.hasWork() {
		s.idle = false
		s.armTick()
	} else if !s.idle {
		s.idle = true
		s.becameIdle()
	}
	return report
}

func (s *Scheduler) hasWork() bool {
	for _, q := range s.queues {
		if !q.empty() {
			return true
		}
	}
	return false
}

func (s *Scheduler) runBatch() TickReport {
	load := s.queues[StageLoad]
	parse := s.queues[StageParse]
	post := s.queues[StagePostProcessTypes]
	resolve := s.queues[StageResolve]

	var report TickReport
	switch {
	case !load.empty():
		report.Stage = StageLoad
		for _, m := range load.take(s.cfg.LoadBatch) {
			s.load(m)
			parse.push(m)
			report.Processed++
		}
	case !parse.empty():
		report.Stage = StageParse
		for _, m := range parse.take(s.cfg.ParseBatch) {
			s.parse(m)
			post.push(m)
			report.Processed++
		}
		if parse.empty() && !s.initialParseDone {
			s.initialParseDone = true
			slog.Info("initial parse done", "modules", s.registry.Len())
		}
	case !post.empty():
		report.Stage = StagePostProcessTypes
		if !s.CanResolve() {
			report.Gated = true
			break
		}
		for _, m := range post.take(s.cfg.PostProcessBatch) {
			s.postProcess(m)
			resolve.push(m)
			report.Processed++
		}
	case !resolve.empty():
		report.Stage = StageResolve
		if !s.CanResolve() {
			report.Gated = true
			break
		}
		for _, m := range resolve.take(s.cfg.ResolveBatch) {
			s.resolve(m)
			report.Processed++
		}
	default:
		report.Stage = StageNone
	}

	if report.Gated {
		observability.TickGatedTotal.Inc()
	} else if report.Processed > 0 {
		observability.TickBatchesTotal.WithLabelValues(report.Stage.String()).Inc()
	}
	for i, q := range s.queues {
		observability.QueueDepth.WithLabelValues(Stage(i).String()).Set(float64(q.pending()))
	}
	return report
}

func (s *Scheduler) becameIdle() {
	if s.pendingSweep != SweepNone {
		kind := s.pendingSweep
		s.pendingSweep = SweepNone
		s.startSweep(kind)
	}
	for _, fn := range s.idleHooks {
		fn()
	}
}

// load reads m from disk unless it already has content.
func (s *Scheduler) load(m *module.Module) {
	if m.Loaded() {
		return
	}
	if s.loader == nil || m.Path == "" {
		m.MarkDeleted()
		return
	}
	content, exists, err := s.loader.Load(m.Path)
	if err != nil {
		slog.Warn("failed to load module", "module", m.Name, "path", m.Path, "error", err)
		observability.StageFailuresTotal.WithLabelValues(StageLoad.String()).Inc()
		m.MarkDeleted()
		m.SetStageFailure(module.StateLoaded, failureDiagnostic(StageLoad, err))
		return
	}
	if !exists {
		m.MarkDeleted()
		return
	}
	m.SetContent(content)
}

func (s *Scheduler) parse(m *module.Module) {
	if m.Parsed() {
		return
	}
	s.load(m)
	var result ports.ParseResult
	err := s.runStage(StageParse, m, func() error {
		var err error
		result, err = s.analyzer.Parse(m)
		return err
	})
	if err != nil {
		m.MarkParsed(nil, nil)
		m.SetStageFailure(module.StateParsed, failureDiagnostic(StageParse, err))
		return
	}
	m.MarkParsed(result.Syntax, result.Dependencies)
}

func (s *Scheduler) postProcess(m *module.Module) {
	if m.TypesPostProcessed() {
		return
	}
	s.parse(m)
	err := s.runStage(StagePostProcessTypes, m, func() error {
		return s.analyzer.PostProcessTypes(m)
	})
	m.MarkTypesPostProcessed()
	if err != nil {
		m.SetStageFailure(module.StateTypesPostProcessed, failureDiagnostic(StagePostProcessTypes, err))
	}
}

// resolve completes every stage for m and publishes its diagnostics.
func (s *Scheduler) resolve(m *module.Module) {
	if m.Resolved() {
		return
	}
	s.postProcess(m)
	var diags []module.Diagnostic
	err := s.runStage(StageResolve, m, func() error {
		var err error
		diags, err = s.analyzer.Resolve(m)
		return err
	})
	m.MarkResolved(diags)
	if err != nil {
		m.SetStageFailure(module.StateResolved, failureDiagnostic(StageResolve, err))
	}
	if s.publisher != nil {
		s.publisher.PublishModule(m)
	}
}

// runStage calls fn, converting a panic into an error so a single module
// cannot abort a batch.
func (s *Scheduler) runStage(stage Stage, m *module.Module, fn func() error) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
		observability.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(started).Seconds())
		if err != nil {
			observability.StageFailuresTotal.WithLabelValues(stage.String()).Inc()
			slog.Warn("analysis stage failed", "stage", stage.String(), "module", m.Name, "error", err)
		}
	}()
	return fn()
}

func failureDiagnostic(stage Stage, err error) module.Diagnostic {
	return module.Diagnostic{
		Range: module.Range{
			Start: module.Position{Line: 0, Character: 0},
			End:   module.Position{Line: 0, Character: 1},
		},
		Severity: module.SeverityError,
		Message:  fmt.Sprintf("internal error during %s: %v", stage, err),
		Source:   "scriptls",
	}
}

// dependencies returns the known modules m imports.
func (s *Scheduler) dependencies(m *module.Module) []*module.Module {
	out := make([]*module.Module, 0, len(m.Dependencies))
	for _, name := range m.Dependencies {
		if dep := s.registry.ByName(name); dep != nil {
			out = append(out, dep)
		}
	}
	return out
}

func (s *Scheduler) parseWithDependencies(m *module.Module) {
	s.parse(m)
	for _, dep := range s.dependencies(m) {
		s.parse(dep)
	}
}

func (s *Scheduler) postProcessWithDependencies(m *module.Module) {
	s.postProcess(m)
	for _, dep := range s.dependencies(m) {
		s.postProcess(dep)
	}
}
