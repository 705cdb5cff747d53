package embedder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewhound/dupindex/pkg/types"
)

// The canonical text builders must be deterministic: byte-identical
// output for identical inputs. Cache keys and reproducible similarity
// scores both depend on it, so list fields are sorted before joining.

// BuildCodeText produces the canonical code-structure text for a card.
// It layers the structural identity (signature, complexity, internal
// calls) above the raw body so structurally similar functions embed
// close together even when identifiers differ.
func BuildCodeText(card types.FunctionCard, body string) string {
	internals := append([]string(nil), card.CalledInternals...)
	sort.Strings(internals)

	var b strings.Builder
	fmt.Fprintf(&b, "function %s\n", card.Name)
	fmt.Fprintf(&b, "signature: %s\n", card.Signature)
	fmt.Fprintf(&b, "complexity: %d\n", card.ComplexityScore)
	fmt.Fprintf(&b, "calls: %s\n", strings.Join(internals, ", "))
	b.WriteString(body)
	return b.String()
}

// BuildNLPText produces the canonical natural-language text for a card.
// Returns "" when the card carries no semantic fields; the caller maps
// that to the zero-vector sentinel instead of embedding an empty string.
func BuildNLPText(card types.FunctionCard) string {
	if card.Summary == "" && len(card.KeyConcepts) == 0 {
		return ""
	}

	concepts := append([]string(nil), card.KeyConcepts...)
	sort.Strings(concepts)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", card.Summary)
	fmt.Fprintf(&b, "concepts: %s\n", strings.Join(concepts, ", "))
	fmt.Fprintf(&b, "profile: %s", card.BehavioralProfile)
	return b.String()
}
