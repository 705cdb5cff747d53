package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/reviewhound/dupindex/internal/embedder"
	"github.com/reviewhound/dupindex/internal/indexer"
	"github.com/reviewhound/dupindex/internal/ragcache"
	"github.com/reviewhound/dupindex/internal/vecstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "dupindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDataDir is the default location for index data
	DefaultDataDir = "~/.dupindex"

	// EnvDBPath overrides the data directory
	EnvDBPath = "DUPINDEX_DB_PATH"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	store   *vecstore.Store
	emb     embedder.Embedder
	cache   *ragcache.Cache
	indexer *indexer.Indexer
	logger  *slog.Logger
}

// NewServer creates a new MCP server instance. dataDir may be empty, in
// which case DUPINDEX_DB_PATH and then ~/.dupindex are used.
func NewServer(ctx context.Context, dataDir string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dataDir == "" {
		dataDir = os.Getenv(EnvDBPath)
	}
	if dataDir == "" || dataDir == DefaultDataDir {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".dupindex")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := vecstore.Open(ctx, filepath.Join(dataDir, "dupindex.db"), emb.Dimension(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	cache := ragcache.Load(filepath.Join(dataDir, "ragcache.json"))

	idx, err := indexer.New(store, emb, cache, logger, indexer.Config{})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		store:   store,
		emb:     emb,
		cache:   cache,
		indexer: idx,
		logger:  logger,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.emb.Close()
		_ = s.store.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// Interrupt forwards a cancellation request to any running indexing pass
func (s *Server) Interrupt() {
	s.indexer.Interrupt()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(findDuplicatesTool(), s.handleFindDuplicates)
	s.mcp.AddTool(searchFunctionsTool(), s.handleSearchFunctions)
	s.mcp.AddTool(reindexTool(), s.handleReindex)
	s.mcp.AddTool(listFilesTool(), s.handleListFiles)
	s.mcp.AddTool(deleteFileTool(), s.handleDeleteFile)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
}
