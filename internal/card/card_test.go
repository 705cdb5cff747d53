package card

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewhound/dupindex/pkg/types"
)

const sampleSource = `import { db } from './db';

function findUser(id) {
  if (!id) {
    return null;
  }
  return db.query(id);
}

function loadUser(id) {
  const user = findUser(id);
  return user ? user : makeGuest();
}

function makeGuest() {
  return { name: 'guest' };
}
`

func sampleTask() types.Task {
	return types.Task{
		File: "src/users.ts",
		Hash: "deadbeef",
		Symbols: []types.Symbol{
			{Name: "findUser", Kind: types.KindFunction, LineStart: 3, LineEnd: 8},
			{Name: "loadUser", Kind: types.KindFunction, LineStart: 10, LineEnd: 13},
			{Name: "makeGuest", Kind: types.KindFunction, LineStart: 15, LineEnd: 17},
		},
	}
}

func TestBuildFunctionID(t *testing.T) {
	id := BuildFunctionID("src/users.ts", 3, 8)
	assert.Len(t, id, 16)
	assert.Regexp(t, `^[a-f0-9]{16}$`, id)

	// Deterministic
	assert.Equal(t, id, BuildFunctionID("src/users.ts", 3, 8))

	// Any component change yields a different id
	assert.NotEqual(t, id, BuildFunctionID("src/other.ts", 3, 8))
	assert.NotEqual(t, id, BuildFunctionID("src/users.ts", 4, 8))
	assert.NotEqual(t, id, BuildFunctionID("src/users.ts", 3, 9))
}

func TestBuildCardsSymbolOrder(t *testing.T) {
	cards := BuildCards(sampleTask(), sampleSource, nil)
	require.Len(t, cards, 3)
	assert.Equal(t, "findUser", cards[0].Name)
	assert.Equal(t, "loadUser", cards[1].Name)
	assert.Equal(t, "makeGuest", cards[2].Name)

	for _, c := range cards {
		assert.NoError(t, c.Validate())
		assert.Equal(t, "src/users.ts", c.FilePath)
		assert.Equal(t, types.ProfileUtility, c.BehavioralProfile)
		assert.Empty(t, c.Summary)
	}
}

func TestBuildCardsSkipsNonFunctions(t *testing.T) {
	task := sampleTask()
	task.Symbols = append(task.Symbols,
		types.Symbol{Name: "User", Kind: types.KindInterface, LineStart: 1, LineEnd: 1},
		types.Symbol{Name: "Role", Kind: types.KindTypeAlias, LineStart: 2, LineEnd: 2},
	)
	cards := BuildCards(task, sampleSource, nil)
	assert.Len(t, cards, 3)
}

func TestBuildCardsSemanticsMerge(t *testing.T) {
	semantics := map[string]types.SemanticFields{
		"loadUser": {
			Summary:           "Loads a user, falling back to a guest record",
			KeyConcepts:       []string{"user", "fallback"},
			BehavioralProfile: "pure",
		},
		"makeGuest": {
			BehavioralProfile: "not-a-profile",
		},
	}

	cards := BuildCards(sampleTask(), sampleSource, semantics)
	require.Len(t, cards, 3)

	assert.Equal(t, "Loads a user, falling back to a guest record", cards[1].Summary)
	assert.Equal(t, []string{"user", "fallback"}, cards[1].KeyConcepts)
	assert.Equal(t, types.ProfilePure, cards[1].BehavioralProfile)

	// Unknown profile normalizes, never propagates
	assert.Equal(t, types.ProfileUtility, cards[2].BehavioralProfile)

	// Unmentioned symbol keeps safe defaults
	assert.Empty(t, cards[0].Summary)
	assert.Equal(t, types.ProfileUtility, cards[0].BehavioralProfile)
}

func TestCalledInternals(t *testing.T) {
	cards := BuildCards(sampleTask(), sampleSource, nil)
	require.Len(t, cards, 3)

	// loadUser calls both siblings
	assert.Equal(t, []string{"findUser", "makeGuest"}, cards[1].CalledInternals)

	// findUser calls no sibling; its own name never counts
	assert.Empty(t, cards[0].CalledInternals)
	assert.Empty(t, cards[2].CalledInternals)
}

func TestCalledInternalsWordBoundary(t *testing.T) {
	source := strings.Join([]string{
		"function load() {",
		"  return loader();", // substring, not a call of "load"... but boundary check is on the callee name
		"}",
		"function loader() {",
		"  return 1;",
		"}",
	}, "\n")

	task := types.Task{
		File: "src/a.ts",
		Hash: "h",
		Symbols: []types.Symbol{
			{Name: "load", Kind: types.KindFunction, LineStart: 1, LineEnd: 3},
			{Name: "loader", Kind: types.KindFunction, LineStart: 4, LineEnd: 6},
		},
	}
	cards := BuildCards(task, source, nil)
	require.Len(t, cards, 2)

	// "loader" appears in load's body as a whole word
	assert.Equal(t, []string{"loader"}, cards[0].CalledInternals)
	// "load" inside "loader" must not match on a word boundary basis:
	// loader's body is "return 1;", which mentions neither
	assert.Empty(t, cards[1].CalledInternals)
}

func TestExtractSignature(t *testing.T) {
	cards := BuildCards(sampleTask(), sampleSource, nil)
	require.Len(t, cards, 3)
	assert.Equal(t, "function findUser(id)", cards[0].Signature)
	assert.Equal(t, "function loadUser(id)", cards[1].Signature)
}

func TestExtractSignatureMultiline(t *testing.T) {
	source := strings.Join([]string{
		"export async function fetchAll(",
		"  ids,",
		"  options,",
		") {",
		"  return [];",
		"}",
	}, "\n")
	lines := strings.Split(source, "\n")
	sig := extractSignature(lines, 1, 6)
	assert.Equal(t, "export async function fetchAll( ids, options, )", sig)
}

func TestComplexityScore(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"straight line", "return a + b;", 1},
		{"single if", "if (a) { return 1; }\nreturn 2;", 2},
		{"else if counts once", "if (a) {\n} else if (b) {\n} else {\n}", 2},
		// raw = 1 + if + two lines carrying logical operators = 4,
		// which lands in the 4-6 ordinal bucket
		{"logical per line", "if (a && b) {\n  return c || d;\n}", 3},
		{"case branches", "switch (x) {\ncase 1:\ncase 2:\ndefault:\n}", 2},
		{"ternary", "return a ? b : c;", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, complexityScore(tt.body))
		})
	}
}

func TestOrdinalScore(t *testing.T) {
	assert.Equal(t, 1, ordinalScore(1))
	assert.Equal(t, 2, ordinalScore(2))
	assert.Equal(t, 2, ordinalScore(3))
	assert.Equal(t, 3, ordinalScore(6))
	assert.Equal(t, 4, ordinalScore(10))
	assert.Equal(t, 5, ordinalScore(11))
	assert.Equal(t, 5, ordinalScore(100))
}

func TestBodyTextClamping(t *testing.T) {
	source := "one\ntwo\nthree"
	assert.Equal(t, "two\nthree", BodyText(source, 2, 3))
	assert.Equal(t, "one\ntwo\nthree", BodyText(source, 0, 99))
	assert.Equal(t, "", BodyText(source, 3, 2))
}
