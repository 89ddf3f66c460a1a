package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/vertexrag/internal/rag"
)

func doc(id, text string) rag.RawDocument {
	return rag.RawDocument{ID: id, Title: id, Text: text, SourcePath: id + ".txt", Format: rag.FormatText}
}

func TestSplit_ShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := Split([]rag.RawDocument{doc("d1", "A short note.")}, 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.StartOffset != 0 || c.Text != "A short note." {
		t.Errorf("expected offset 0 and full text, got %d %q", c.StartOffset, c.Text)
	}
	if c.ID != "d1-0" || c.ParentID != "d1" || c.SequenceIndex != 0 {
		t.Errorf("unexpected identity: %+v", c)
	}
}

func TestSplit_CharacterLevelOffsets(t *testing.T) {
	chunks, err := Split([]rag.RawDocument{doc("d1", strings.Repeat("A", 2500))}, 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOffsets := []int{0, 900, 1800}
	wantLens := []int{1000, 1000, 700}
	if len(chunks) != len(wantOffsets) {
		t.Fatalf("expected %d chunks, got %d", len(wantOffsets), len(chunks))
	}
	for i, c := range chunks {
		if c.StartOffset != wantOffsets[i] {
			t.Errorf("chunk %d: expected offset %d, got %d", i, wantOffsets[i], c.StartOffset)
		}
		if n := utf8.RuneCountInString(c.Text); n != wantLens[i] {
			t.Errorf("chunk %d: expected length %d, got %d", i, wantLens[i], n)
		}
	}
}

func TestSplitText_PrefersWordBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		overlap int
		want    []Passage
	}{
		{"no overlap", 4, []Passage{{0, "aaaa bbbb"}, {10, "cccc"}}},
		{"one word overlap", 5, []Passage{{0, "aaaa bbbb"}, {5, "bbbb cccc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Config{ChunkSize: 10, ChunkOverlap: tt.overlap}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := s.SplitText("aaaa bbbb cccc")
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("passage %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestSplitText_SentenceSeparatorStaysWithSentence(t *testing.T) {
	s, err := New(Config{ChunkSize: 10, ChunkOverlap: 0}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.SplitText("One. Two. Three.")
	want := []Passage{{0, "One. Two."}, {10, "Three."}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("passage %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestSplit_Invariants(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("lorem ipsum dolor sit amet. ", 3+i%7))
		if i%3 == 0 {
			b.WriteString("\n\n")
		} else {
			b.WriteString("\n")
		}
	}
	b.WriteString(strings.Repeat("x", 450)) // no separators at all
	text := b.String()
	runes := []rune(text)

	const size, overlap = 200, 40
	chunks, err := Split([]rag.RawDocument{doc("d1", text)}, size, overlap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	prevStart, prevEnd := -1, 0
	var rebuilt strings.Builder
	for i, c := range chunks {
		n := utf8.RuneCountInString(c.Text)
		if n > size {
			t.Errorf("chunk %d: length %d exceeds %d", i, n, size)
		}
		if c.StartOffset <= prevStart {
			t.Errorf("chunk %d: offset %d not after %d", i, c.StartOffset, prevStart)
		}
		if got := string(runes[c.StartOffset : c.StartOffset+n]); got != c.Text {
			t.Errorf("chunk %d: text does not match source at offset %d", i, c.StartOffset)
		}
		if shared := prevEnd - c.StartOffset; shared > overlap {
			t.Errorf("chunk %d: overlaps previous by %d > %d", i, shared, overlap)
		}
		if c.SequenceIndex != i || c.Metadata["start_index"] != c.StartOffset {
			t.Errorf("chunk %d: unexpected sequence/metadata %d %v", i, c.SequenceIndex, c.Metadata["start_index"])
		}

		from := 0
		if prevEnd > c.StartOffset {
			from = prevEnd - c.StartOffset
		}
		rebuilt.WriteString(string([]rune(c.Text)[from:]))
		prevStart, prevEnd = c.StartOffset, c.StartOffset+n
	}

	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }
	if squash(rebuilt.String()) != squash(text) {
		t.Error("chunks with overlap removed do not reproduce the document")
	}
}

func TestSplit_EmptyAndWhitespaceDocuments(t *testing.T) {
	chunks, err := Split([]rag.RawDocument{doc("a", ""), doc("b", "  \n\n\t "), doc("c", "text")}, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ParentID != "c" {
		t.Fatalf("expected only the non-blank document to produce a chunk, got %+v", chunks)
	}
}

func TestSplit_NoDocuments(t *testing.T) {
	chunks, err := Split(nil, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	tests := []struct{ size, overlap int }{{100, 100}, {100, 150}, {0, 0}, {100, -1}}
	for _, tt := range tests {
		_, err := Split([]rag.RawDocument{doc("d", "text")}, tt.size, tt.overlap)
		var cfgErr *rag.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("size=%d overlap=%d: expected ConfigError, got %v", tt.size, tt.overlap, err)
		}
	}
}

func TestSplit_MissingIDAbortsWithoutPartialResults(t *testing.T) {
	docs := []rag.RawDocument{doc("ok", "first document"), {Text: "no id here", SourcePath: "x.txt"}}
	chunks, err := Split(docs, 100, 10)
	if !errors.Is(err, rag.ErrSplit) {
		t.Fatalf("expected split error, got %v", err)
	}
	if chunks != nil {
		t.Errorf("expected no partial chunks, got %d", len(chunks))
	}
}

func TestSplit_MultibyteOffsetsAreRunes(t *testing.T) {
	text := strings.Repeat("é", 30)
	chunks, err := Split([]rag.RawDocument{doc("d", text)}, 20, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].StartOffset != 15 {
		t.Errorf("expected rune offset 15, got %d", chunks[1].StartOffset)
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Error("expected 0 tokens for empty text")
	}
	if got := EstimateTokens("hi"); got != 1 {
		t.Errorf("expected minimum of 1 token, got %d", got)
	}
	if got := EstimateTokens(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("expected 100 tokens for 400 chars without spaces, got %d", got)
	}
}
