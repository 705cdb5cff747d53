package types

import (
	"errors"
	"regexp"
	"time"
)

// BehavioralProfile classifies how a function interacts with its environment
type BehavioralProfile string

const (
	ProfilePure          BehavioralProfile = "pure"
	ProfileSideEffectful BehavioralProfile = "sideEffectful"
	ProfileAsync         BehavioralProfile = "async"
	ProfileMemoized      BehavioralProfile = "memoized"
	ProfileStateful      BehavioralProfile = "stateful"
	ProfileUtility       BehavioralProfile = "utility"
)

// Valid reports whether the profile is one of the closed enum values
func (p BehavioralProfile) Valid() bool {
	switch p {
	case ProfilePure, ProfileSideEffectful, ProfileAsync, ProfileMemoized, ProfileStateful, ProfileUtility:
		return true
	default:
		return false
	}
}

// NormalizeProfile maps an arbitrary string onto the closed enum.
// Unknown or missing values normalize to ProfileUtility, never left unset.
func NormalizeProfile(s string) BehavioralProfile {
	p := BehavioralProfile(s)
	if p.Valid() {
		return p
	}
	return ProfileUtility
}

// SemanticFields holds the optional LLM-derived parts of a FunctionCard
type SemanticFields struct {
	Summary           string   `json:"summary"`
	KeyConcepts       []string `json:"key_concepts"`
	BehavioralProfile string   `json:"behavioral_profile"`
}

// FunctionCard is the identity and metadata record for one indexed function
type FunctionCard struct {
	ID                string            `json:"id"`
	FilePath          string            `json:"file_path"`
	Name              string            `json:"name"`
	Signature         string            `json:"signature"`
	ComplexityScore   int               `json:"complexity_score"`
	CalledInternals   []string          `json:"called_internals"`
	Summary           string            `json:"summary"`
	KeyConcepts       []string          `json:"key_concepts"`
	BehavioralProfile BehavioralProfile `json:"behavioral_profile"`
	LastIndexed       time.Time         `json:"last_indexed"`

	// Source location, used for signature/body extraction and id
	// derivation. Not persisted in the store row.
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`
}

// FunctionIDPattern is the strict format for card ids. Ids are derived
// from (filePath, lineStart, lineEnd) and must match before use in any
// store filter.
var FunctionIDPattern = regexp.MustCompile(`^[a-f0-9]{16}$`)

// ErrInvalidFunctionID is returned when an id fails the strict format check
var ErrInvalidFunctionID = errors.New("invalid function id")

// Validate checks the card's required identity fields
func (c *FunctionCard) Validate() error {
	if !FunctionIDPattern.MatchString(c.ID) {
		return ErrInvalidFunctionID
	}
	if c.FilePath == "" {
		return errors.New("file path is required")
	}
	if c.Name == "" {
		return errors.New("function name is required")
	}
	if !c.BehavioralProfile.Valid() {
		return errors.New("invalid behavioral profile")
	}
	return nil
}

// SimilarityResult pairs a stored card with its similarity score.
// Scores are cosine similarities in [-1, 1].
type SimilarityResult struct {
	Card  FunctionCard `json:"card"`
	Score float64      `json:"score"`
}
