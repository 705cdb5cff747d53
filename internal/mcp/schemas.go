package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// findDuplicatesTool returns the tool definition for find_duplicates
func findDuplicatesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_duplicates",
		Description: "Find functions semantically similar to an indexed function, blending code-structure and natural-language similarity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "16-character hex id of the query function",
				},
				"code_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of code similarity in the blended score; 1.0 means code-only",
					"default":     0.7,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum blended similarity for a result to be reported",
					"default":     0.8,
					"minimum":     -1.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"id"},
		},
	}
}

// searchFunctionsTool returns the tool definition for search_functions
func searchFunctionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_functions",
		Description: "Search indexed functions by free-text query on either the code or semantic channel",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text search query",
				},
				"channel": map[string]interface{}{
					"type":        "string",
					"description": "Which embedding channel to search: code or nlp",
					"enum":        []string{"code", "nlp"},
					"default":     "code",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity for a result to be reported",
					"default":     0.0,
					"minimum":     -1.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// reindexTool returns the tool definition for reindex
func reindexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex",
		Description: "Run an incremental indexing pass over a task manifest produced by the parser",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tasks_file": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSON manifest of file tasks (paths, content hashes, symbols) and optional semantic fields",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files processed concurrently",
					"default":     4,
					"minimum":     1,
					"maximum":     64,
				},
				"exclude": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns for file paths to skip (e.g. 'vendor/**')",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"tasks_file"},
		},
	}
}

// listFilesTool returns the tool definition for list_files
func listFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_files",
		Description: "List indexed file paths with per-file function counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// deleteFileTool returns the tool definition for delete_file
func deleteFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_file",
		Description: "Remove an indexed file's functions from the index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Indexed file path to remove",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Query index statistics: card and file counts, embedding dimension, dual-embedding availability, index size",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
