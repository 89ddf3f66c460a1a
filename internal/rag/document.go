package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

// Format identifies how a source file is parsed into text.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatCSV      Format = "csv"
)

var extensionFormats = map[string]Format{
	".pdf":      FormatPDF,
	".txt":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".docx":     FormatDOCX,
	".csv":      FormatCSV,
}

// FormatForExtension maps a file extension (with or without the leading dot,
// any case) to its Format.
func FormatForExtension(ext string) (Format, bool) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, ok := extensionFormats[ext]
	return f, ok
}

// FormatForPath is FormatForExtension applied to a file path.
func FormatForPath(path string) (Format, bool) {
	return FormatForExtension(filepath.Ext(path))
}

// RawDocument is the full text of one source file before splitting.
type RawDocument struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Text       string `json:"-"`
	SourcePath string `json:"source_path"`
	Format     Format `json:"format"`

	// ContentHash is the SHA-256 of the parsed text, used to skip unchanged
	// documents on re-ingest.
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DocumentID derives a stable document ID from its path relative to the load
// root. The same file always gets the same ID regardless of enumeration order.
func DocumentID(relPath string) string {
	return HashHex([]byte(filepath.ToSlash(filepath.Clean(relPath))))[:16]
}

// HashHex computes SHA-256 of data and returns the hex string.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Chunk is a contiguous passage of a RawDocument.
type Chunk struct {
	ID            string         `json:"id"`
	ParentID      string         `json:"parent_id"`
	SequenceIndex int            `json:"sequence_index"`
	StartOffset   int            `json:"start_offset"` // rune offset into the parent text
	Text          string         `json:"text"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ChunkID returns the datapoint ID of the seq-th chunk of a document.
// IDs are stable across runs so re-ingesting a document overwrites its datapoints.
func ChunkID(parentID string, seq int) string {
	return parentID + "-" + strconv.Itoa(seq)
}

// IndexEntry is what the vector index stores for one chunk.
type IndexEntry struct {
	Chunk      Chunk
	Embedding  []float32
	ExternalID string
}

// Neighbor is one raw hit returned by the vector index.
type Neighbor struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float64
}

// QueryResult is one retrieved chunk. Results are ordered by descending score.
type QueryResult struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}
