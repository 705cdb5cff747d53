package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reviewhound/dupindex/internal/indexer"
	"github.com/reviewhound/dupindex/internal/vecstore"
	"github.com/reviewhound/dupindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // Function or file not in the index
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// Search defaults
const (
	DefaultCodeWeight = 0.7
	DefaultMinScore   = 0.8
	DefaultLimit      = 10
)

// taskManifest is the JSON shape consumed by the reindex tool. The
// parser collaborator writes one of these per pass.
type taskManifest struct {
	Tasks     []types.Task                               `json:"tasks"`
	Semantics map[string]map[string]types.SemanticFields `json:"semantics,omitempty"`
}

// handleFindDuplicates handles the find_duplicates tool invocation
func (s *Server) handleFindDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}
	if err := vecstore.ValidateFunctionID(id); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid function id", map[string]interface{}{
			"param":  "id",
			"reason": err.Error(),
		})
	}

	codeWeight := getFloatDefault(args, "code_weight", DefaultCodeWeight)
	if codeWeight < 0 || codeWeight > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "code_weight must be between 0 and 1", map[string]interface{}{
			"param": "code_weight",
			"value": codeWeight,
		})
	}
	limit := getIntDefault(args, "limit", DefaultLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	minScore := getFloatDefault(args, "min_score", DefaultMinScore)

	results, err := s.store.SearchByIDHybrid(ctx, id, codeWeight, limit, minScore)
	if err != nil {
		if isNotFound(err) {
			return nil, newMCPError(ErrorCodeNotFound, "function not indexed", map[string]interface{}{
				"id": id,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "duplicate search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query_id":    id,
		"code_weight": codeWeight,
		"min_score":   minScore,
		"count":       len(results),
		"results":     formatResults(results),
	})), nil
}

// handleSearchFunctions handles the search_functions tool invocation
func (s *Server) handleSearchFunctions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	channel := getStringDefault(args, "channel", "code")
	column := vecstore.ColumnCode
	switch channel {
	case "code":
		// default
	case "nlp":
		column = vecstore.ColumnNLP
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid channel", map[string]interface{}{
			"param":   "channel",
			"value":   channel,
			"allowed": []string{"code", "nlp"},
		})
	}

	limit := getIntDefault(args, "limit", DefaultLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	minScore := getFloatDefault(args, "min_score", 0.0)

	vector, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to embed query", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results, err := s.store.Search(ctx, vector, column, limit, minScore)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"channel": channel,
		"count":   len(results),
		"results": formatResults(results),
	})), nil
}

// handleReindex handles the reindex tool invocation
func (s *Server) handleReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tasksFile, ok := args["tasks_file"].(string)
	if !ok || tasksFile == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "tasks_file parameter is required", map[string]interface{}{
			"param":  "tasks_file",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(tasksFile) {
		return nil, newMCPError(ErrorCodeInvalidParams, "tasks_file must be an absolute path", map[string]interface{}{
			"param": "tasks_file",
			"value": tasksFile,
		})
	}

	data, err := os.ReadFile(tasksFile)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "failed to read tasks file", map[string]interface{}{
			"param": "tasks_file",
			"error": err.Error(),
		})
	}
	var manifest taskManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "malformed tasks file", map[string]interface{}{
			"param": "tasks_file",
			"error": err.Error(),
		})
	}

	workers := getIntDefault(args, "workers", indexer.DefaultWorkers)
	exclude := getStringSlice(args, "exclude")

	idx, err := indexer.New(s.store, s.emb, s.cache, s.logger, indexer.Config{
		Workers: workers,
		Exclude: exclude,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid indexer configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats, err := idx.Run(ctx, manifest.Tasks, manifest.Semantics)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing pass failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"files_scanned":      stats.FilesScanned,
		"files_excluded":     stats.FilesExcluded,
		"files_skipped":      stats.FilesSkipped,
		"files_errored":      stats.FilesErrored,
		"files_interrupted":  stats.FilesInterrupted,
		"functions_embedded": stats.FunctionsEmbedded,
		"functions_reused":   stats.FunctionsReused,
		"functions_degraded": stats.FunctionsDegraded,
		"functions_failed":   stats.FunctionsFailed,
		"interrupted":        stats.Interrupted,
		"duration_ms":        stats.Duration.Milliseconds(),
		"total_cards":        stats.Store.TotalCards,
		"total_files":        stats.Store.TotalFiles,
	})), nil
}

// handleListFiles handles the list_files tool invocation
func (s *Server) handleListFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.store.ListIndexedFiles(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(files),
		"files": files,
	})), nil
}

// handleDeleteFile handles the delete_file tool invocation
func (s *Server) handleDeleteFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	deleted, err := s.indexer.DeleteFile(ctx, path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete file", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":    path,
		"deleted": deleted,
	})), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to collect statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total_cards":        stats.TotalCards,
		"total_files":        stats.TotalFiles,
		"dimension":          stats.Dimension,
		"has_dual_embedding": stats.HasDualEmbedding,
		"index_size_mb":      fmt.Sprintf("%.2f", stats.IndexSizeMB),
		"build_mode":         stats.BuildMode,
		"provider":           s.emb.Provider(),
		"model":              s.emb.Model(),
		"cache_entries":      s.cache.Len(),
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func isNotFound(err error) bool {
	return errors.Is(err, vecstore.ErrNotFound)
}

// formatResults flattens similarity results into JSON-friendly maps
func formatResults(results []types.SimilarityResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]interface{}{
			"id":                 r.Card.ID,
			"file_path":          r.Card.FilePath,
			"name":               r.Card.Name,
			"signature":          r.Card.Signature,
			"summary":            r.Card.Summary,
			"behavioral_profile": string(r.Card.BehavioralProfile),
			"complexity_score":   r.Card.ComplexityScore,
			"score":              r.Score,
		})
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string-array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
