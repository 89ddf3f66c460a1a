package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// Parsed is the plain-text rendition of one source file. Blocks such as
// paragraphs, headings and pages are separated by blank lines so the splitter
// can cut on them.
type Parsed struct {
	Text  string
	Title string // empty when the format carries no title
	Pages int    // 0 when the format has no pages
}

// Parser converts raw document bytes into plain text.
type Parser interface {
	Parse(r io.Reader) (*Parsed, error)
}

// Options tune parser construction.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFormat returns the parser for a format.
func ForFormat(f rag.Format, opts Options) (Parser, error) {
	switch f {
	case rag.FormatText:
		return &TextParser{}, nil
	case rag.FormatMarkdown:
		return &MarkdownParser{}, nil
	case rag.FormatPDF:
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case rag.FormatHTML:
		return &HTMLParser{}, nil
	case rag.FormatDOCX:
		return &DOCXParser{}, nil
	case rag.FormatCSV:
		return &CSVParser{}, nil
	default:
		return nil, fmt.Errorf("no parser for format %q", f)
	}
}

// ForFile returns the parser for a filename based on its extension.
func ForFile(filename string, opts Options) (Parser, rag.Format, error) {
	f, ok := rag.FormatForPath(filename)
	if !ok {
		return nil, "", fmt.Errorf("unsupported file extension: %s", filename)
	}
	p, err := ForFormat(f, opts)
	return p, f, err
}

// joinBlocks trims each block, drops empty ones and joins the rest with a
// blank line.
func joinBlocks(blocks []string) string {
	out := blocks[:0:0]
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}
