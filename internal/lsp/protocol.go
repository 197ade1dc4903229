package lsp

import (
	"encoding/json"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/script"
)

const jsonrpcVersion = "2.0"

// JSON-RPC and LSP error codes.
const (
	codeParseError           = -32700
	codeInvalidRequest       = -32600
	codeMethodNotFound       = -32601
	codeInvalidParams        = -32602
	codeInternalError        = -32603
	codeServerNotInitialized = -32002
	codeRateLimited          = -32005
	codeRequestCancelled     = -32800
	codeRequestFailed        = -32803
)

// message is any incoming JSON-RPC message. Requests carry an ID and a
// method, notifications only a method.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (m message) isRequest() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *responseError  `json:"error,omitempty"`
}

// errorResponse drops the result field, which must be absent on errors.
type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *responseError) Error() string { return e.Message }

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type InitializeParams struct {
	ProcessID             *int              `json:"processId"`
	RootPath              string            `json:"rootPath,omitempty"`
	RootURI               string            `json:"rootUri,omitempty"`
	WorkspaceFolders      []WorkspaceFolder `json:"workspaceFolders,omitempty"`
	InitializationOptions json.RawMessage   `json:"initializationOptions,omitempty"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   TextDocumentIdentifier           `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// FileChangeType values of workspace/didChangeWatchedFiles.
const (
	FileCreated = 1
	FileChanged = 2
	FileDeleted = 3
)

type FileEvent struct {
	URI  string `json:"uri"`
	Type int    `json:"type"`
}

type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type ReferenceParams struct {
	TextDocumentPositionParams
	Context struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
}

type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

type ShowMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// MessageType values of window/showMessage.
const (
	MessageError   = 1
	MessageWarning = 2
	MessageInfo    = 3
)

type CompletionItem struct {
	Label  string `json:"label"`
	Kind   int    `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}

type PrepareRenameResult struct {
	Range       Range  `json:"range"`
	Placeholder string `json:"placeholder"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities map[string]any `json:"capabilities"`
	ServerInfo   ServerInfo     `json:"serverInfo"`
}

func toPosition(p module.Position) Position {
	return Position{Line: p.Line, Character: p.Character}
}

func fromPosition(p Position) module.Position {
	return module.Position{Line: p.Line, Character: p.Character}
}

func toRange(r module.Range) Range {
	return Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func toLocations(locs []module.Location) []Location {
	if locs == nil {
		return nil
	}
	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, Location{URI: l.URI, Range: toRange(l.Range)})
	}
	return out
}

func toDiagnostics(diags []module.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, Diagnostic{
			Range:    toRange(d.Range),
			Severity: int(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return out
}

// LSP CompletionItemKind values.
const (
	completionKindFunction = 3
	completionKindField    = 5
	completionKindClass    = 7
	completionKindKeyword  = 14
)

func completionKind(k script.CompletionKind) int {
	switch k {
	case script.CompletionKeyword:
		return completionKindKeyword
	case script.CompletionFunction:
		return completionKindFunction
	case script.CompletionProperty:
		return completionKindField
	default:
		return completionKindClass
	}
}

func toCompletionItems(items []script.CompletionItem) []CompletionItem {
	out := make([]CompletionItem, 0, len(items))
	for _, it := range items {
		out = append(out, CompletionItem{Label: it.Label, Kind: completionKind(it.Kind), Detail: it.Detail})
	}
	return out
}

// LSP SymbolKind values.
const (
	symbolKindNamespace = 3
	symbolKindClass     = 5
	symbolKindProperty  = 7
	symbolKindEnum      = 10
	symbolKindFunction  = 12
	symbolKindEvent     = 24
	symbolKindStruct    = 23
)

func symbolKind(k script.DeclKind) int {
	switch k {
	case script.DeclStruct:
		return symbolKindStruct
	case script.DeclEnum:
		return symbolKindEnum
	case script.DeclDelegate, script.DeclEvent:
		return symbolKindEvent
	case script.DeclFunction:
		return symbolKindFunction
	case script.DeclProperty:
		return symbolKindProperty
	case script.DeclNamespace:
		return symbolKindNamespace
	default:
		return symbolKindClass
	}
}

func toDocumentSymbols(syms []script.SymbolInfo) []DocumentSymbol {
	out := make([]DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		ds := DocumentSymbol{
			Name:           s.Name,
			Detail:         s.Detail,
			Kind:           symbolKind(s.Kind),
			Range:          toRange(s.Range),
			SelectionRange: toRange(s.SelectionRange),
		}
		if len(s.Children) > 0 {
			ds.Children = toDocumentSymbols(s.Children)
		}
		out = append(out, ds)
	}
	return out
}

func toWorkspaceEdit(edits map[string][]module.TextEdit) *WorkspaceEdit {
	if edits == nil {
		return nil
	}
	out := &WorkspaceEdit{Changes: make(map[string][]TextEdit, len(edits))}
	for uri, list := range edits {
		converted := make([]TextEdit, 0, len(list))
		for _, e := range list {
			converted = append(converted, TextEdit{Range: toRange(e.Range), NewText: e.NewText})
		}
		out.Changes[uri] = converted
	}
	return out
}
