package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actorSource = `import Game.Weapons;
import void Helper() from "Game.Util";

UCLASS()
class AMyActor : AActor
{
	UPROPERTY()
	int Health = 100;

	UFUNCTION(BlueprintOverride)
	void BeginPlay()
	{
		Health = 5; // "}" in a comment
	}
}

struct FStats
{
	float Speed;
}

/* enum EIgnored {} */
enum EMode
{
	Idle,
	Running = 2,
}

delegate void FOnDied(AMyActor Actor);
event void FOnHit(int Damage);
`

func TestParse_Outline(t *testing.T) {
	f := Parse(actorSource)
	require.Empty(t, f.Errors)

	require.Len(t, f.Imports, 2)
	assert.Equal(t, "Game.Weapons", f.Imports[0].Module)
	assert.Equal(t, "Game.Util", f.Imports[1].Module)

	require.Len(t, f.Decls, 5)
	actor := f.Decls[0]
	assert.Equal(t, DeclClass, actor.Kind)
	assert.Equal(t, "AMyActor", actor.Name)
	assert.Equal(t, "AActor", actor.Super)
	assert.Equal(t, 4, actor.NameRange.Start.Line)
	assert.Equal(t, 6, actor.NameRange.Start.Character)
	require.Len(t, actor.Members, 2)
	assert.Equal(t, DeclProperty, actor.Members[0].Kind)
	assert.Equal(t, "Health", actor.Members[0].Name)
	assert.Equal(t, DeclFunction, actor.Members[1].Kind)
	assert.Equal(t, "BeginPlay", actor.Members[1].Name)

	assert.Equal(t, DeclStruct, f.Decls[1].Kind)
	require.Len(t, f.Decls[1].Members, 1)
	assert.Equal(t, "Speed", f.Decls[1].Members[0].Name)

	enum := f.Decls[2]
	assert.Equal(t, DeclEnum, enum.Kind)
	require.Len(t, enum.Members, 2)
	assert.Equal(t, "Idle", enum.Members[0].Name)
	assert.Equal(t, "Running", enum.Members[1].Name)

	assert.Equal(t, DeclDelegate, f.Decls[3].Kind)
	assert.Equal(t, "FOnDied", f.Decls[3].Name)
	assert.Equal(t, DeclEvent, f.Decls[4].Kind)
	assert.Equal(t, "FOnHit", f.Decls[4].Name)
	assert.Len(t, f.TypeDecls(), 5)
}

func TestParse_IdentifiersIncludeBodies(t *testing.T) {
	f := Parse(actorSource)
	count := 0
	for _, id := range f.Idents {
		if id.Name == "Health" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing base", "class A : { }", "expected base class after ':'"},
		{"unclosed class", "class A { int X;", "missing '}' for class A"},
		{"stray brace", "}", "unexpected '}'"},
		{"unclosed parens", "void F(int a", "unbalanced '('"},
		{"malformed delegate", "delegate ;", "malformed delegate declaration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.src)
			require.NotEmpty(t, f.Errors)
			assert.Equal(t, tt.want, f.Errors[0].Message)
		})
	}
}

func TestParse_Namespace(t *testing.T) {
	f := Parse("namespace Util { void Help() {} int Count; }")
	require.Empty(t, f.Errors)
	require.Len(t, f.Decls, 1)
	ns := f.Decls[0]
	assert.Equal(t, DeclNamespace, ns.Kind)
	require.Len(t, ns.Members, 2)
	assert.Equal(t, "Help", ns.Members[0].Name)
	assert.Equal(t, "Count", ns.Members[1].Name)
}

func TestScan_RunePositions(t *testing.T) {
	toks := Scan("é x")
	require.Len(t, toks, 3)
	assert.Equal(t, "é", toks[0].Text)
	assert.Equal(t, 2, toks[1].Range.Start.Character)
	assert.Equal(t, TokenEOF, toks[2].Kind)
}
