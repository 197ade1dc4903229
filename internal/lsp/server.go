// Package lsp serves the editor protocol: Content-Length framed JSON-RPC 2.0
// on a byte stream, dispatched to a Backend.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"scriptls/internal/core/watcher"
	"scriptls/internal/engine/diagnostics"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/script"
	"scriptls/internal/shared/observability"
	"scriptls/internal/shared/util"
	"sync"
	"time"
)

// ErrExitWithoutShutdown is returned by Serve when the client sends exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

// Backend answers editor traffic. Notification methods must not block.
type Backend interface {
	Start(ctx context.Context, roots []string) error
	DidOpen(uri, text string)
	DidChange(uri, text string)
	DidClose(uri string)
	FilesChanged(changes []watcher.Change)
	ConfigurationChanged(settings diagnostics.Settings)

	Completion(ctx context.Context, uri string, pos module.Position) ([]script.CompletionItem, error)
	Hover(ctx context.Context, uri string, pos module.Position) (string, module.Range, bool, error)
	Definition(ctx context.Context, uri string, pos module.Position) ([]module.Location, error)
	DocumentSymbols(ctx context.Context, uri string) ([]script.SymbolInfo, error)
	References(ctx context.Context, uri string, pos module.Position) ([]module.Location, error)
	PrepareRename(ctx context.Context, uri string, pos module.Position) (*module.Range, string, error)
	Rename(ctx context.Context, uri string, pos module.Position, newName string) (map[string][]module.TextEdit, error)
	ExecuteCommand(ctx context.Context, command string, args []json.RawMessage) error
}

type Options struct {
	Name    string
	Version string
	// Commands advertised through executeCommandProvider.
	Commands []string
	// DefaultRoots are scanned when the client names no workspace.
	DefaultRoots []string
	// RequestRate and RequestBurst throttle references and rename.
	RequestRate  float64
	RequestBurst int
}

type Server struct {
	in       *bufio.Reader
	out      io.Writer
	writeMu  sync.Mutex
	opts     Options
	limiters *util.LimiterRegistry

	mu          sync.Mutex
	backend     Backend
	roots       []string
	initialized bool
	started     bool
	shutdown    bool
	inflight    map[string]context.CancelFunc
	wg          sync.WaitGroup
}

func NewServer(r io.Reader, w io.Writer, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "scriptls"
	}
	if opts.RequestRate <= 0 {
		opts.RequestRate = 20
	}
	if opts.RequestBurst <= 0 {
		opts.RequestBurst = 5
	}
	return &Server{
		in:       bufio.NewReader(r),
		out:      w,
		opts:     opts,
		limiters: util.NewLimiterRegistry(opts.RequestRate, opts.RequestBurst, 10*time.Minute),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Serve reads messages until the stream ends, ctx is cancelled or the client
// sends exit. In-flight requests are cancelled before it returns.
func (s *Server) Serve(ctx context.Context, backend Backend) error {
	if backend == nil {
		return fmt.Errorf("lsp backend is required")
	}
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	type readResult struct {
		body []byte
		err  error
	}
	reads := make(chan readResult)
	go func() {
		for {
			body, err := readMessage(s.in)
			select {
			case reads <- readResult{body, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var rr readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rr = <-reads:
		}
		if errors.Is(rr.err, io.EOF) {
			slog.Info("editor closed the stream")
			return nil
		}
		if rr.err != nil {
			return fmt.Errorf("read message: %w", rr.err)
		}

		var msg message
		if err := json.Unmarshal(rr.body, &msg); err != nil {
			s.replyError(nil, &responseError{Code: codeParseError, Message: "parse error"})
			continue
		}
		if msg.Method == "" {
			// Responses to server-initiated requests; none are sent.
			continue
		}
		if msg.Method == "exit" {
			s.mu.Lock()
			clean := s.shutdown
			s.mu.Unlock()
			if !clean {
				return ErrExitWithoutShutdown
			}
			return nil
		}
		if msg.isRequest() {
			s.handleRequest(ctx, msg)
		} else {
			s.handleNotification(ctx, msg)
		}
	}
}

// Publish implements ports.DiagnosticsSink.
func (s *Server) Publish(uri string, diags []module.Diagnostic) {
	s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: toDiagnostics(diags),
	})
}

// ShowMessage pops a message up in the editor.
func (s *Server) ShowMessage(typ int, text string) {
	s.notify("window/showMessage", ShowMessageParams{Type: typ, Message: text})
}

func (s *Server) notify(method string, params any) {
	if err := s.write(notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}); err != nil {
		slog.Debug("failed to send notification", "method", method, "error", err)
	}
}

func (s *Server) write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeMessage(s.out, body)
}

func (s *Server) reply(id json.RawMessage, result any) {
	if err := s.write(response{JSONRPC: jsonrpcVersion, ID: id, Result: result}); err != nil {
		slog.Debug("failed to send response", "error", err)
	}
}

func (s *Server) replyError(id json.RawMessage, rerr *responseError) {
	if id == nil {
		id = json.RawMessage("null")
	}
	if err := s.write(errorResponse{JSONRPC: jsonrpcVersion, ID: id, Error: rerr}); err != nil {
		slog.Debug("failed to send error response", "error", err)
	}
}

type handlerFunc func(ctx context.Context, b Backend, params json.RawMessage) (any, error)

var requestHandlers = map[string]handlerFunc{
	"textDocument/completion":     handleCompletion,
	"textDocument/hover":          handleHover,
	"textDocument/definition":     handleDefinition,
	"textDocument/documentSymbol": handleDocumentSymbol,
	"textDocument/references":     handleReferences,
	"textDocument/prepareRename":  handlePrepareRename,
	"textDocument/rename":         handleRename,
}

// rateLimited lists the requests that scan the whole workspace.
var rateLimited = map[string]bool{
	"textDocument/references": true,
	"textDocument/rename":     true,
}

func (s *Server) handleRequest(ctx context.Context, msg message) {
	s.mu.Lock()
	initialized, shutdown := s.initialized, s.shutdown
	s.mu.Unlock()

	switch {
	case msg.Method == "initialize":
		if initialized {
			s.replyError(msg.ID, &responseError{Code: codeInvalidRequest, Message: "server already initialized"})
			return
		}
		s.reply(msg.ID, s.initialize(msg.Params))
		return
	case !initialized:
		s.replyError(msg.ID, &responseError{Code: codeServerNotInitialized, Message: "server not initialized"})
		return
	case shutdown:
		s.replyError(msg.ID, &responseError{Code: codeInvalidRequest, Message: "server is shutting down"})
		return
	case msg.Method == "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.reply(msg.ID, nil)
		return
	}

	if rateLimited[msg.Method] && !s.limiters.Get(msg.Method).Allow() {
		observability.RequestsTotal.WithLabelValues(msg.Method, "rate_limited").Inc()
		s.replyError(msg.ID, &responseError{Code: codeRateLimited, Message: "Rate limit exceeded"})
		return
	}

	var handler handlerFunc
	if msg.Method == "workspace/executeCommand" {
		handler = s.handleExecuteCommand
	} else {
		handler = requestHandlers[msg.Method]
	}
	if handler == nil {
		s.replyError(msg.ID, &responseError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)})
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	key := string(msg.ID)
	s.mu.Lock()
	s.inflight[key] = cancel
	backend := s.backend
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
			cancel()
		}()

		started := time.Now()
		result, err := handler(reqCtx, backend, msg.Params)
		observability.RequestDuration.WithLabelValues(msg.Method).Observe(time.Since(started).Seconds())
		if err == nil && reqCtx.Err() != nil {
			err = reqCtx.Err()
		}
		if err != nil {
			rerr := toResponseError(err)
			observability.RequestsTotal.WithLabelValues(msg.Method, outcome(rerr)).Inc()
			if rerr.Code == codeInternalError {
				slog.Warn("request failed", "method", msg.Method, "error", err)
			}
			s.replyError(msg.ID, rerr)
			return
		}
		observability.RequestsTotal.WithLabelValues(msg.Method, "ok").Inc()
		s.reply(msg.ID, result)
	}()
}

func outcome(rerr *responseError) string {
	switch rerr.Code {
	case codeRequestCancelled:
		return "cancelled"
	case codeInternalError:
		return "error"
	default:
		return "failed"
	}
}

func (s *Server) handleNotification(ctx context.Context, msg message) {
	s.mu.Lock()
	initialized, backend := s.initialized, s.backend
	s.mu.Unlock()
	if !initialized {
		slog.Debug("dropping notification before initialize", "method", msg.Method)
		return
	}

	switch msg.Method {
	case "initialized":
		s.startBackend(ctx)
	case "$/cancelRequest":
		var p CancelParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return
		}
		s.mu.Lock()
		cancel := s.inflight[string(p.ID)]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case "textDocument/didOpen":
		var p DidOpenTextDocumentParams
		if decodeNotification(msg, &p) {
			backend.DidOpen(p.TextDocument.URI, p.TextDocument.Text)
		}
	case "textDocument/didChange":
		var p DidChangeTextDocumentParams
		if decodeNotification(msg, &p) && len(p.ContentChanges) > 0 {
			// Full document sync: the last change holds the whole text.
			backend.DidChange(p.TextDocument.URI, p.ContentChanges[len(p.ContentChanges)-1].Text)
		}
	case "textDocument/didClose":
		var p DidCloseTextDocumentParams
		if decodeNotification(msg, &p) {
			backend.DidClose(p.TextDocument.URI)
		}
	case "textDocument/didSave":
	case "workspace/didChangeWatchedFiles":
		var p DidChangeWatchedFilesParams
		if decodeNotification(msg, &p) {
			backend.FilesChanged(toChanges(p.Changes))
		}
	case "workspace/didChangeConfiguration":
		var p DidChangeConfigurationParams
		if !decodeNotification(msg, &p) {
			return
		}
		if settings, ok := parseSettings(p.Settings); ok {
			backend.ConfigurationChanged(settings)
		}
	default:
		slog.Debug("ignoring notification", "method", msg.Method)
	}
}

func decodeNotification(msg message, v any) bool {
	if err := json.Unmarshal(msg.Params, v); err != nil {
		slog.Warn("malformed notification", "method", msg.Method, "error", err)
		return false
	}
	return true
}

func toChanges(events []FileEvent) []watcher.Change {
	changes := make([]watcher.Change, 0, len(events))
	for _, e := range events {
		var kind watcher.ChangeKind
		switch e.Type {
		case FileCreated:
			kind = watcher.Created
		case FileChanged:
			kind = watcher.Changed
		case FileDeleted:
			kind = watcher.Deleted
		default:
			continue
		}
		changes = append(changes, watcher.Change{Path: module.URIToPath(e.URI), Kind: kind})
	}
	return changes
}

// editorSettings is the client-side configuration section.
type editorSettings struct {
	UnrealAngelscript *struct {
		DiagnosticsForUnrealNamingConvention bool `json:"diagnosticsForUnrealNamingConvention"`
	} `json:"UnrealAngelscript"`
}

func parseSettings(raw json.RawMessage) (diagnostics.Settings, bool) {
	var es editorSettings
	if len(raw) == 0 || json.Unmarshal(raw, &es) != nil || es.UnrealAngelscript == nil {
		return diagnostics.Settings{}, false
	}
	return diagnostics.Settings{NamingConvention: es.UnrealAngelscript.DiagnosticsForUnrealNamingConvention}, true
}

func (s *Server) initialize(raw json.RawMessage) InitializeResult {
	var p InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			slog.Warn("malformed initialize params", "error", err)
		}
	}
	roots := workspaceRoots(p)
	if len(roots) == 0 {
		roots = s.opts.DefaultRoots
	}

	s.mu.Lock()
	s.initialized = true
	s.roots = roots
	s.mu.Unlock()
	slog.Info("editor initialized", "roots", roots)

	commands := s.opts.Commands
	if commands == nil {
		commands = []string{}
	}
	return InitializeResult{
		Capabilities: map[string]any{
			"textDocumentSync": map[string]any{
				"openClose": true,
				"change":    1,
				"save":      map[string]any{"includeText": false},
			},
			"completionProvider":     map[string]any{"triggerCharacters": []string{".", ":"}},
			"hoverProvider":          true,
			"definitionProvider":     true,
			"documentSymbolProvider": true,
			"referencesProvider":     true,
			"renameProvider":         map[string]any{"prepareProvider": true},
			"executeCommandProvider": map[string]any{"commands": commands},
		},
		ServerInfo: ServerInfo{Name: s.opts.Name, Version: s.opts.Version},
	}
}

func workspaceRoots(p InitializeParams) []string {
	var roots []string
	for _, f := range p.WorkspaceFolders {
		if f.URI != "" {
			roots = append(roots, module.URIToPath(f.URI))
		}
	}
	if len(roots) > 0 {
		return roots
	}
	if p.RootURI != "" {
		return []string{module.URIToPath(p.RootURI)}
	}
	if p.RootPath != "" {
		return []string{p.RootPath}
	}
	return nil
}

func (s *Server) startBackend(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	backend, roots := s.backend, s.roots
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := backend.Start(ctx, roots); err != nil && ctx.Err() == nil {
			slog.Error("failed to start analysis", "error", err)
			s.ShowMessage(MessageError, fmt.Sprintf("scriptls failed to start: %v", err))
		}
	}()
}

func decodeParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &responseError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func handleCompletion(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	items, err := b.Completion(ctx, p.TextDocument.URI, fromPosition(p.Position))
	if err != nil {
		return nil, err
	}
	return toCompletionItems(items), nil
}

func handleHover(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	text, r, ok, err := b.Hover(ctx, p.TextDocument.URI, fromPosition(p.Position))
	if err != nil || !ok {
		return nil, err
	}
	rng := toRange(r)
	return &Hover{Contents: MarkupContent{Kind: "markdown", Value: text}, Range: &rng}, nil
}

func handleDefinition(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	locs, err := b.Definition(ctx, p.TextDocument.URI, fromPosition(p.Position))
	if err != nil {
		return nil, err
	}
	return toLocations(locs), nil
}

func handleDocumentSymbol(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p struct {
		TextDocument TextDocumentIdentifier `json:"textDocument"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	syms, err := b.DocumentSymbols(ctx, p.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return toDocumentSymbols(syms), nil
}

func handleReferences(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p ReferenceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	locs, err := b.References(ctx, p.TextDocument.URI, fromPosition(p.Position))
	if err != nil {
		return nil, err
	}
	return toLocations(locs), nil
}

func handlePrepareRename(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	r, name, err := b.PrepareRename(ctx, p.TextDocument.URI, fromPosition(p.Position))
	if err != nil || r == nil {
		return nil, err
	}
	return &PrepareRenameResult{Range: toRange(*r), Placeholder: name}, nil
}

func handleRename(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p RenameParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	edits, err := b.Rename(ctx, p.TextDocument.URI, fromPosition(p.Position), p.NewName)
	if err != nil {
		return nil, err
	}
	return toWorkspaceEdit(edits), nil
}

// handleExecuteCommand reports an unreachable host in the editor rather than
// failing the request.
func (s *Server) handleExecuteCommand(ctx context.Context, b Backend, raw json.RawMessage) (any, error) {
	var p ExecuteCommandParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	err := b.ExecuteCommand(ctx, p.Command, p.Arguments)
	if isUnavailable(err) {
		s.ShowMessage(MessageWarning, "The editor host is not connected, cannot run "+p.Command)
		return nil, nil
	}
	return nil, err
}
