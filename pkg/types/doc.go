// Package types defines the shared data model for the duplicate-function
// index: Task records handed in by the external AST scanner, FunctionCard
// identity records, and similarity search results.
//
// # Tasks
//
// The scanner produces one Task per source file:
//
//	task := types.Task{
//	    File: "src/auth/login.ts",
//	    Hash: "9f2c...",
//	    Symbols: []types.Symbol{
//	        {Name: "validateToken", Kind: types.KindFunction, LineStart: 12, LineEnd: 40},
//	    },
//	}
//
// Only function-like kinds (function, method, hook) produce cards.
//
// # FunctionCards
//
// A FunctionCard identifies one function by a deterministic 16-hex-char
// digest of (filePath, lineStart, lineEnd). Structural fields (signature,
// complexity, called internals) are derived locally; semantic fields
// (summary, key concepts, behavioral profile) come from the LLM reviewer
// and normalize to safe defaults when absent.
package types
