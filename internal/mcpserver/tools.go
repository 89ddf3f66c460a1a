package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query  string            `json:"query" jsonschema:"the text to find similar passages for"`
	K      int               `json:"k,omitempty" jsonschema:"maximum number of passages to return"`
	Filter map[string]string `json:"filter,omitempty" jsonschema:"metadata restrictions such as format or source"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []Passage `json:"results"`
	Count   int       `json:"count"`
}

// Passage is one retrieved chunk.
type Passage struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source,omitempty"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// DocumentsInput is the (empty) input schema for the documents tool.
type DocumentsInput struct{}

// DocumentsOutput lists indexed documents.
type DocumentsOutput struct {
	Documents []Document `json:"documents"`
	Count     int        `json:"count"`
}

// Document is one indexed source file.
type Document struct {
	DocID      string `json:"doc_id"`
	SourcePath string `json:"source_path"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Retrieve the passages most similar to a query from the indexed documents",
	}, s.handleSearch)

	if s.docs != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List the documents currently in the index",
		}, s.handleDocuments)
	}
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}
	results, err := s.search.QueryFiltered(ctx, input.Query, input.K, input.Filter)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: make([]Passage, len(results)), Count: len(results)}
	for i, r := range results {
		source, _ := r.Metadata["source"].(string)
		title, _ := r.Metadata["title"].(string)
		out.Results[i] = Passage{ChunkID: r.ChunkID, Source: source, Title: title, Score: r.Score, Text: r.Text}
	}
	return nil, out, nil
}

func (s *Server) handleDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ DocumentsInput) (*mcp.CallToolResult, DocumentsOutput, error) {
	entries, err := s.docs.List(ctx)
	if err != nil {
		return nil, DocumentsOutput{}, err
	}
	out := DocumentsOutput{Documents: make([]Document, len(entries)), Count: len(entries)}
	for i, e := range entries {
		out.Documents[i] = Document{DocID: e.DocID, SourcePath: e.SourcePath, Title: e.Title, Chunks: e.ChunkCount}
	}
	return nil, out, nil
}
