// Package mcp exposes the duplicate-function index over the Model
// Context Protocol on stdio.
//
// Tools: find_duplicates (hybrid similarity by function id),
// search_functions (free-text search on either embedding channel),
// reindex (incremental pass over a task manifest), list_files,
// delete_file, and get_stats. All logging goes to stderr; stdout
// carries only protocol frames.
package mcp
