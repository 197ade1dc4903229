package host

import (
	"scriptls/internal/engine/diagnostics"
	"scriptls/internal/engine/typedb"
)

// CompileDiagnostics is the host's compile output for one file.
type CompileDiagnostics struct {
	Path    string
	Entries []diagnostics.CompileEntry
}

func DecodeDiagnostics(body []byte) (CompileDiagnostics, error) {
	r := NewReader(body)
	out := CompileDiagnostics{Path: r.ReadString()}
	count := r.ReadInt()
	for i := 0; i < count && r.Err() == nil; i++ {
		e := diagnostics.CompileEntry{
			Message: r.ReadString(),
			Line:    r.ReadInt(),
			Char:    r.ReadInt(),
			IsError: r.ReadBool(),
			IsInfo:  r.ReadBool(),
		}
		if r.Err() == nil {
			out.Entries = append(out.Entries, e)
		}
	}
	return out, r.Err()
}

// DecodeSettings applies a settings message on top of prev. Fields the
// message's version does not carry keep their previous values.
func DecodeSettings(body []byte, prev typedb.ScriptSettings) (typedb.ScriptSettings, error) {
	r := NewReader(body)
	s := prev
	version := r.ReadInt()
	s.AutomaticImports = r.ReadBool()
	if version >= 2 {
		s.FloatIsFloat64 = r.ReadBool()
	}
	if version >= 3 {
		s.UseAngelscriptHaze = r.ReadBool()
	}
	s.EngineSupportsCreateBlueprint = version >= 4
	if version >= 5 {
		s.DeprecateStaticClass = r.ReadBool()
		s.DisallowStaticClass = r.ReadBool()
	}
	if version >= 6 {
		s.ExposeGlobalFunctions = r.ReadBool()
	}
	if version >= 7 {
		s.DeprecateActorGenerics = r.ReadBool()
		s.DisallowActorGenerics = r.ReadBool()
	}
	if err := r.Err(); err != nil {
		return prev, err
	}
	return s, nil
}

// AssetEntry maps an asset path to its class; an empty class removes it.
type AssetEntry struct {
	Path  string
	Class string
}

// DecodeAssets reads a version 1 asset chunk. The count is the number of
// strings, read as path/class pairs. Other versions decode to nothing.
func DecodeAssets(body []byte) ([]AssetEntry, error) {
	r := NewReader(body)
	version := r.ReadInt()
	if r.Err() != nil || version != 1 {
		return nil, r.Err()
	}
	count := r.ReadInt()
	var out []AssetEntry
	for i := 0; i < count && r.Err() == nil; i += 2 {
		e := AssetEntry{Path: r.ReadString(), Class: r.ReadString()}
		if r.Err() == nil {
			out = append(out, e)
		}
	}
	return out, r.Err()
}

func DecodeReplaceAsset(body []byte) (string, []string, error) {
	r := NewReader(body)
	name := r.ReadString()
	count := r.ReadInt()
	lines := make([]string, 0)
	for i := 0; i < count && r.Err() == nil; i++ {
		lines = append(lines, r.ReadString())
	}
	return name, lines, r.Err()
}

// EncodeFindAssets asks the editor to open assets, optionally of a class.
func EncodeFindAssets(paths []string, className string) []byte {
	var w Writer
	w.PutInt(1)
	w.PutInt(len(paths))
	for _, p := range paths {
		w.PutString(p)
	}
	w.PutString(className)
	return EncodeMessage(MsgFindAssets, w.Bytes())
}

func EncodeCreateBlueprint(className string) []byte {
	var w Writer
	w.PutString(className)
	return EncodeMessage(MsgCreateBlueprint, w.Bytes())
}
