// Package mcpserver exposes retrieval to MCP clients over stdio.
package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgallion1/vertexrag/internal/manifest"
	"github.com/dgallion1/vertexrag/internal/rag"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingSearcher is returned when no searcher is configured.
var ErrMissingSearcher = errors.New("search service is required")

// Searcher answers similarity queries.
type Searcher interface {
	QueryFiltered(ctx context.Context, text string, k int, filter map[string]string) ([]rag.QueryResult, error)
}

// DocumentLister lists indexed documents.
type DocumentLister interface {
	List(ctx context.Context) ([]manifest.Entry, error)
}

// Server is the MCP server for vertexrag.
type Server struct {
	search Searcher
	docs   DocumentLister
	server *mcp.Server
}

// New creates a server. docs may be nil, in which case the documents tool is
// not registered.
func New(search Searcher, docs DocumentLister) (*Server, error) {
	if search == nil {
		return nil, ErrMissingSearcher
	}
	s := &Server{
		search: search,
		docs:   docs,
		server: mcp.NewServer(&mcp.Implementation{Name: "vertexrag", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
