package diagnostics

import "scriptls/internal/engine/module"

// CompileEntry is one diagnostic as reported by the host compiler.
type CompileEntry struct {
	Message string
	Line    int
	Char    int
	IsError bool
	IsInfo  bool
}

// hostLineWidth spans the whole line since the host reports no column range.
const hostLineWidth = 10000

// FromCompile converts host entries to editor diagnostics. Info entries are
// only kept when they annotate a line that already has a diagnostic, and
// non-positive lines are clamped to the first line.
func FromCompile(entries []CompileEntry) []module.Diagnostic {
	out := make([]module.Diagnostic, 0, len(entries))
	for _, e := range entries {
		if e.IsInfo {
			annotated := false
			for _, d := range out {
				if d.Range.Start.Line == e.Line-1 {
					annotated = true
					break
				}
			}
			if !annotated {
				continue
			}
		}

		line := e.Line
		if line <= 0 {
			line = 1
		}
		sev := module.SeverityWarning
		switch {
		case e.IsInfo:
			sev = module.SeverityInformation
		case e.IsError:
			sev = module.SeverityError
		}
		out = append(out, module.Diagnostic{
			Range: module.Range{
				Start: module.Position{Line: line - 1, Character: 0},
				End:   module.Position{Line: line - 1, Character: hostLineWidth},
			},
			Severity: sev,
			Message:  e.Message,
			Source:   "as",
		})
	}
	return out
}
