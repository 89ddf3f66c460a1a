package chunker

import (
	"errors"
	"fmt"
	"log/slog"
	"unicode"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// DefaultSeparators are tried in order, coarsest first. The empty separator
// splits into single characters and must stay last.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Config controls splitting. Sizes are measured in characters (runes).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultConfig returns the default sizes: 1000 characters with 100 of overlap.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Separators:   DefaultSeparators,
	}
}

// Validate checks the size relationship between chunk size and overlap.
func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return &rag.ConfigError{Reason: fmt.Sprintf("chunk size must be positive, got %d", c.ChunkSize)}
	case c.ChunkOverlap < 0:
		return &rag.ConfigError{Reason: fmt.Sprintf("chunk overlap must not be negative, got %d", c.ChunkOverlap)}
	case c.ChunkOverlap >= c.ChunkSize:
		return &rag.ConfigError{Reason: fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)}
	}
	return nil
}

// Splitter cuts documents into overlapping chunks, preferring to cut on the
// coarsest separator that keeps pieces under the chunk size.
type Splitter struct {
	cfg  Config
	seps [][]rune
	log  *slog.Logger
}

// New validates cfg and returns a Splitter.
func New(cfg Config, log *slog.Logger) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Splitter{cfg: cfg, log: log}
	for _, sep := range cfg.Separators {
		s.seps = append(s.seps, []rune(sep))
	}
	if len(s.seps[len(s.seps)-1]) != 0 {
		s.seps = append(s.seps, nil)
	}
	return s, nil
}

// Split is a convenience wrapper that builds a Splitter with the default
// separators and splits docs.
func Split(docs []rag.RawDocument, chunkSize, chunkOverlap int) ([]rag.Chunk, error) {
	s, err := New(Config{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil)
	if err != nil {
		return nil, err
	}
	return s.Split(docs)
}

// Split chunks every document in order. Any failure aborts the whole call and
// no chunks are returned.
func (s *Splitter) Split(docs []rag.RawDocument) (chunks []rag.Chunk, err error) {
	if len(docs) == 0 {
		s.log.Warn("no documents to split")
		return nil, nil
	}

	var current string
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = &rag.SplitError{DocID: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	for _, doc := range docs {
		current = doc.ID
		if doc.ID == "" {
			return nil, &rag.SplitError{Err: errors.New("document " + doc.SourcePath + " has no id")}
		}
		for seq, sp := range s.SplitText(doc.Text) {
			chunks = append(chunks, newChunk(doc, seq, sp))
		}
	}

	s.log.Info("split documents", "documents", len(docs), "chunks", len(chunks),
		"chunk_size", s.cfg.ChunkSize, "chunk_overlap", s.cfg.ChunkOverlap)
	return chunks, nil
}

// Passage is one chunk of a text with its rune offset.
type Passage struct {
	Offset int
	Text   string
}

// SplitText returns the passages of a single text in order. Offsets are
// strictly increasing.
func (s *Splitter) SplitText(text string) []Passage {
	runes := []rune(text)
	if isBlank(runes) {
		return nil
	}
	if len(runes) <= s.cfg.ChunkSize {
		return []Passage{{Offset: 0, Text: text}}
	}

	var out []Passage
	for _, sp := range s.splitSpan(runes, span{0, len(runes)}, s.seps) {
		lead, trail := whitespaceAround(runes[sp.start:sp.end])
		if sp.start+lead >= sp.end-trail {
			continue
		}
		p := Passage{Offset: sp.start + lead, Text: string(runes[sp.start+lead : sp.end-trail])}
		// A later span that trims to the same start covers the earlier one.
		if n := len(out); n > 0 && p.Offset <= out[n-1].Offset {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

type span struct{ start, end int }

func (sp span) len() int { return sp.end - sp.start }

// splitSpan cuts sp on the first separator it contains, recursing with the
// finer separators into pieces that are still too large, and merges the
// remaining pieces into chunk-sized spans.
func (s *Splitter) splitSpan(runes []rune, sp span, seps [][]rune) []span {
	sep := seps[len(seps)-1]
	var finer [][]rune
	for i, candidate := range seps {
		if len(candidate) == 0 {
			sep, finer = nil, nil
			break
		}
		if indexRunes(runes[sp.start:sp.end], candidate) >= 0 {
			sep, finer = candidate, seps[i+1:]
			break
		}
	}

	var out, small []span
	for _, piece := range cut(runes, sp, sep) {
		if piece.len() < s.cfg.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small)...)
			small = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.splitSpan(runes, piece, finer)...)
		}
	}
	if len(small) > 0 {
		out = append(out, s.merge(small)...)
	}
	return out
}

// merge packs consecutive pieces into spans of at most ChunkSize runes. When
// a span is emitted, pieces are dropped from its front until the remainder is
// within ChunkOverlap and leaves room for the next piece; the remainder opens
// the next span.
func (s *Splitter) merge(pieces []span) []span {
	var out []span
	var window []span
	total := 0
	for _, p := range pieces {
		n := p.len()
		if total+n > s.cfg.ChunkSize && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for total > s.cfg.ChunkOverlap || (total+n > s.cfg.ChunkSize && total > 0) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

// cut splits sp into contiguous pieces, each separator staying at the end of
// the piece it terminates. A nil separator yields single runes.
func cut(runes []rune, sp span, sep []rune) []span {
	var pieces []span
	if len(sep) == 0 {
		for i := sp.start; i < sp.end; i++ {
			pieces = append(pieces, span{i, i + 1})
		}
		return pieces
	}
	start := sp.start
	for start < sp.end {
		idx := indexRunes(runes[start:sp.end], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		pieces = append(pieces, span{start, end})
		start = end
	}
	if start < sp.end {
		pieces = append(pieces, span{start, sp.end})
	}
	return pieces
}

func indexRunes(hay, needle []rune) int {
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func whitespaceAround(runes []rune) (lead, trail int) {
	for lead < len(runes) && unicode.IsSpace(runes[lead]) {
		lead++
	}
	for trail < len(runes)-lead && unicode.IsSpace(runes[len(runes)-1-trail]) {
		trail++
	}
	return lead, trail
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func newChunk(doc rag.RawDocument, seq int, p Passage) rag.Chunk {
	meta := make(map[string]any, len(doc.Metadata)+7)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["source"] = doc.SourcePath
	meta["doc_id"] = doc.ID
	meta["title"] = doc.Title
	meta["format"] = string(doc.Format)
	meta["start_index"] = p.Offset
	meta["chunk_index"] = seq
	meta["approx_tokens"] = EstimateTokens(p.Text)

	return rag.Chunk{
		ID:            rag.ChunkID(doc.ID, seq),
		ParentID:      doc.ID,
		SequenceIndex: seq,
		StartOffset:   p.Offset,
		Text:          p.Text,
		Metadata:      meta,
	}
}
