package host

import (
	"log/slog"
	"scriptls/internal/engine/assets"
	"scriptls/internal/engine/diagnostics"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/typedb"
	"scriptls/internal/shared/observability"
	"time"
)

// Rescheduler re-runs resolution once the type database changes.
type Rescheduler interface {
	ReResolveAllModules()
}

// CompileSink receives the host's compile diagnostics per document.
type CompileSink interface {
	UpdateCompileDiagnostics(uri string, diags []module.Diagnostic)
}

type Status struct {
	Connected     bool   `json:"connected"`
	Session       string `json:"session,omitempty"`
	TypesTimedOut bool   `json:"types_timed_out"`
	Receiving     bool   `json:"receiving"`
	HasTypes      bool   `json:"has_types"`
	TypeCount     int    `json:"type_count"`
	AssetCount    int    `json:"asset_count"`
	Finalizes     int    `json:"finalizes"`
}

// Sync applies host messages to the type database, the asset database and
// the diagnostics publisher. It runs entirely on the loop goroutine.
type Sync struct {
	l        *loop.Loop
	cfg      Config
	types    *typedb.Gateway
	assets   *assets.Database
	registry *module.Registry
	sched    Rescheduler
	compile  CompileSink

	stall         *loop.Timer
	connectTimer  *loop.Timer
	typesTimedOut bool
	connected     bool
	session       string
	finalizes     int
}

func NewSync(cfg Config, l *loop.Loop, types *typedb.Gateway, assetDB *assets.Database, registry *module.Registry, sched Rescheduler, compile CompileSink) *Sync {
	return &Sync{
		l:        l,
		cfg:      cfg.withDefaults(),
		types:    types,
		assets:   assetDB,
		registry: registry,
		sched:    sched,
		compile:  compile,
	}
}

// Start arms the startup timeout that flags a host which never delivers types.
func (s *Sync) Start() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
	}
	s.connectTimer = s.l.AfterFunc(s.cfg.ConnectTimeout, s.connectTimedOut)
}

func (s *Sync) Stop() {
	s.connectTimer.Stop()
	s.stall.Stop()
}

func (s *Sync) connectTimedOut() {
	if s.types.HasTypes() || s.types.Receiving() {
		return
	}
	s.typesTimedOut = true
	slog.Warn("no type database received from host", "address", s.cfg.Address, "after", s.cfg.ConnectTimeout)
}

func (s *Sync) TypesTimedOut() bool {
	return s.typesTimedOut
}

func (s *Sync) Status() Status {
	return Status{
		Connected:     s.connected,
		Session:       s.session,
		TypesTimedOut: s.typesTimedOut,
		Receiving:     s.types.Receiving(),
		HasTypes:      s.types.HasTypes(),
		TypeCount:     s.types.Len(),
		AssetCount:    s.assets.Len(),
		Finalizes:     s.finalizes,
	}
}

func (s *Sync) ConnectionOpened(session string) {
	s.connected = true
	s.session = session
	slog.Info("connected to host", "address", s.cfg.Address, "session", session)
}

func (s *Sync) ConnectionClosed(session string, err error) {
	if session != s.session {
		return
	}
	s.connected = false
	slog.Debug("host connection closed", "session", session, "error", err)
}

func (s *Sync) HandleMessage(msg Message) {
	switch msg.Type {
	case MsgDiagnostics:
		s.handleDiagnostics(msg.Body)
	case MsgDebugDatabase:
		s.handlePartial(msg.Body)
	case MsgDebugDatabaseFinished:
		s.stall.Stop()
		s.finalize("finished")
	case MsgAssetDatabaseInit:
		s.assets.Clear()
	case MsgAssetDatabase:
		entries, err := DecodeAssets(msg.Body)
		if err != nil {
			slog.Warn("malformed asset database message", "error", err)
		}
		for _, e := range entries {
			s.assets.Add(e.Path, e.Class)
		}
	case MsgAssetDatabaseFinished:
		s.assets.Finish()
	case MsgDebugDatabaseSettings:
		settings, err := DecodeSettings(msg.Body, s.types.Settings())
		if err != nil {
			slog.Warn("malformed settings message", "error", err)
			return
		}
		s.types.SetSettings(settings)
	case MsgReplaceAssetDefinition:
		name, lines, err := DecodeReplaceAsset(msg.Body)
		if err != nil {
			slog.Warn("malformed asset definition message", "error", err)
			return
		}
		s.assets.ReplaceDefinition(name, lines)
	default:
		slog.Debug("ignoring host message", "type", msg.Type.String(), "bytes", len(msg.Body))
	}
}

func (s *Sync) handleDiagnostics(body []byte) {
	decoded, err := DecodeDiagnostics(body)
	if err != nil {
		slog.Warn("malformed diagnostics message", "error", err)
		return
	}
	uri := module.PathToURI(decoded.Path)
	s.compile.UpdateCompileDiagnostics(uri, diagnostics.FromCompile(decoded.Entries))
}

func (s *Sync) handlePartial(body []byte) {
	if s.types.HasTypes() {
		// The host is rebuilding after a reconnect; the old catalogue is stale.
		s.types.Invalidate()
		cleared := s.registry.ClearAllResolved()
		slog.Info("type database invalidated", "modules_cleared", cleared)
	}
	n, err := s.types.AddPartial(body)
	if err != nil {
		slog.Warn("malformed type database chunk", "error", err)
	} else {
		observability.TypePartialsTotal.Inc()
		slog.Debug("type database chunk received", "types", n)
	}
	s.typesTimedOut = false

	s.stall.Stop()
	s.stall = s.l.AfterFunc(s.cfg.StallTimeout, func() {
		slog.Debug("type database stalled, finalizing", "after", s.cfg.StallTimeout)
		s.finalize("stall")
	})
}

func (s *Sync) finalize(trigger string) {
	started := time.Now()
	s.types.Finish()
	s.finalizes++
	observability.TypeFinalizeTotal.WithLabelValues(trigger).Inc()
	slog.Info("type database ready", "types", s.types.Len(), "trigger", trigger, "elapsed", time.Since(started))
	s.sched.ReResolveAllModules()
}
