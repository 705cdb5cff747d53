package types

// SymbolKind represents the kind of symbol reported by the scanner
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindHook      SymbolKind = "hook"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindVariable  SymbolKind = "variable"
	KindTypeAlias SymbolKind = "type_alias"
)

// IsFunctionLike reports whether symbols of this kind carry an indexable body
func (k SymbolKind) IsFunctionLike() bool {
	switch k {
	case KindFunction, KindMethod, KindHook:
		return true
	default:
		return false
	}
}

// Symbol is one symbol record produced by the external AST scanner
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Exported  bool       `json:"exported"`
	LineStart int        `json:"line_start"`
	LineEnd   int        `json:"line_end"`
}

// Task describes one source file handed to the index by the scanner.
// Hash is the hex content hash of the whole file at scan time.
type Task struct {
	File    string   `json:"file"`
	Hash    string   `json:"hash"`
	Symbols []Symbol `json:"symbols"`
}

// HasFunctions reports whether the task contains at least one
// function-like symbol. Type-only and barrel files return false and
// cost nothing during an indexing pass.
func (t Task) HasFunctions() bool {
	for _, s := range t.Symbols {
		if s.Kind.IsFunctionLike() {
			return true
		}
	}
	return false
}
