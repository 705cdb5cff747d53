package card

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/reviewhound/dupindex/pkg/types"
)

// BuildFunctionID derives the stable identity digest for a function:
// the first 16 lowercase-hex characters of SHA-256 over
// "filePath:lineStart:lineEnd". Any change to file, start, or end yields
// a different id.
func BuildFunctionID(filePath string, lineStart, lineEnd int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", filePath, lineStart, lineEnd)))
	return hex.EncodeToString(sum[:])[:16]
}

// BuildCards derives one FunctionCard draft per function-like symbol in
// the task. Pure: no I/O, no side effects. Cards come back in symbol
// order. semantics carries optional LLM-derived fields keyed by symbol
// name; missing entries leave safe defaults.
func BuildCards(task types.Task, source string, semantics map[string]types.SemanticFields) []types.FunctionCard {
	lines := strings.Split(source, "\n")

	siblings := make([]string, 0, len(task.Symbols))
	for _, s := range task.Symbols {
		if s.Kind.IsFunctionLike() {
			siblings = append(siblings, s.Name)
		}
	}

	cards := make([]types.FunctionCard, 0, len(siblings))
	for _, sym := range task.Symbols {
		if !sym.Kind.IsFunctionLike() {
			continue
		}

		body := sliceLines(lines, sym.LineStart, sym.LineEnd)
		c := types.FunctionCard{
			ID:                BuildFunctionID(task.File, sym.LineStart, sym.LineEnd),
			FilePath:          task.File,
			Name:              sym.Name,
			Signature:         extractSignature(lines, sym.LineStart, sym.LineEnd),
			ComplexityScore:   complexityScore(body),
			CalledInternals:   calledInternals(body, siblings, sym.Name),
			KeyConcepts:       []string{},
			BehavioralProfile: types.ProfileUtility,
			LineStart:         sym.LineStart,
			LineEnd:           sym.LineEnd,
		}

		if sem, ok := semantics[sym.Name]; ok {
			c.Summary = sem.Summary
			if len(sem.KeyConcepts) > 0 {
				c.KeyConcepts = append([]string(nil), sem.KeyConcepts...)
			}
			c.BehavioralProfile = types.NormalizeProfile(sem.BehavioralProfile)
		}

		cards = append(cards, c)
	}
	return cards
}

// BodyText returns the source text of a function given its 1-indexed
// inclusive line bounds. Out-of-range bounds are clamped.
func BodyText(source string, lineStart, lineEnd int) string {
	return sliceLines(strings.Split(source, "\n"), lineStart, lineEnd)
}

// sliceLines returns the source slice for 1-indexed inclusive line bounds
func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// extractSignature returns the declaration header of the function:
// the lines from the declaration start up to the body opener, collapsed
// to single-space whitespace with the trailing brace stripped.
func extractSignature(lines []string, start, end int) string {
	if start < 1 || start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}

	var parts []string
	for i := start - 1; i < end; i++ {
		line := lines[i]
		if idx := strings.Index(line, "{"); idx >= 0 {
			parts = append(parts, line[:idx])
			break
		}
		parts = append(parts, line)
		// Arrow-style declarations may have no brace on the header line
		if strings.Contains(line, "=>") {
			break
		}
	}
	sig := strings.Join(parts, " ")
	return strings.Join(strings.Fields(sig), " ")
}

var (
	reIf      = regexp.MustCompile(`\bif\b`)
	reElseIf  = regexp.MustCompile(`\belse\s+if\b`)
	reCase    = regexp.MustCompile(`\bcase\b`)
	reTernary = regexp.MustCompile(`\?[^.?]`)
	reLogical = regexp.MustCompile(`&&|\|\|`)
)

// complexityScore computes the 1-5 ordinal complexity of a function body.
// Raw count starts at 1 and adds one per branch point: if (an else-if
// chain counts once, not per keyword), case, ternary, and one per line
// carrying logical operators.
func complexityScore(body string) int {
	raw := 1
	raw += len(reIf.FindAllString(body, -1)) - len(reElseIf.FindAllString(body, -1))
	raw += len(reCase.FindAllString(body, -1))
	raw += len(reTernary.FindAllString(body, -1))
	for _, line := range strings.Split(body, "\n") {
		if reLogical.MatchString(line) {
			raw++
		}
	}
	return ordinalScore(raw)
}

// ordinalScore maps a raw branch count onto the 1-5 scale
func ordinalScore(raw int) int {
	switch {
	case raw <= 1:
		return 1
	case raw <= 3:
		return 2
	case raw <= 6:
		return 3
	case raw <= 10:
		return 4
	default:
		return 5
	}
}

// calledInternals returns the names of sibling symbols referenced in the
// body, in sibling order. The function's own name is excluded so plain
// recursion does not count as an internal call.
func calledInternals(body string, siblings []string, self string) []string {
	called := make([]string, 0, len(siblings))
	seen := make(map[string]bool, len(siblings))
	for _, name := range siblings {
		if name == self || name == "" || seen[name] {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(body) {
			called = append(called, name)
			seen[name] = true
		}
	}
	return called
}
