package script

import (
	"fmt"
	"scriptls/internal/engine/module"
	"strings"
)

// NamingDiagnostics warns about type names that break the engine's prefix
// conventions: A/U for classes, F for structs and delegates, E for enums.
func (a *Analyzer) NamingDiagnostics(m *module.Module) []module.Diagnostic {
	file := fileOf(m)
	if file == nil {
		return nil
	}
	var diags []module.Diagnostic
	for _, d := range file.TypeDecls() {
		var prefixes string
		switch d.Kind {
		case DeclClass:
			prefixes = "AU"
		case DeclStruct, DeclDelegate, DeclEvent:
			prefixes = "F"
		case DeclEnum:
			prefixes = "E"
		}
		if prefixes == "" || d.Name == "" || strings.ContainsRune(prefixes, rune(d.Name[0])) {
			continue
		}
		diags = append(diags, diagnostic(d.NameRange, module.SeverityWarning,
			fmt.Sprintf("%s %s should start with one of %q", d.Kind, d.Name, prefixes)))
	}
	return diags
}
