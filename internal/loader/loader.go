package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgallion1/vertexrag/internal/parser"
	"github.com/dgallion1/vertexrag/internal/rag"
)

// DefaultExtensions are loaded when no extension list is configured.
var DefaultExtensions = []string{".pdf", ".txt", ".md"}

// Options control file discovery.
type Options struct {
	Extensions []string
	Recursive  bool
	Workers    int
}

// FileResult is the outcome of loading one file. Exactly one of Doc and Err
// is set.
type FileResult struct {
	Path string
	Doc  *rag.RawDocument
	Err  error
}

// Result lists per-file outcomes sorted by path.
type Result struct {
	Root    string
	Files   []FileResult
	Skipped []string // files with an allowed extension but no parser
}

// Documents returns the successfully loaded documents in path order.
func (r *Result) Documents() []rag.RawDocument {
	docs := make([]rag.RawDocument, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Doc != nil {
			docs = append(docs, *f.Doc)
		}
	}
	return docs
}

// Failed returns the files that could not be parsed.
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Counts returns the number of loaded and failed files.
func (r *Result) Counts() (loaded, failed int) {
	for _, f := range r.Files {
		if f.Err != nil {
			failed++
		} else {
			loaded++
		}
	}
	return loaded, failed
}

// Loader discovers and parses source files.
type Loader struct {
	parserOpts parser.Options
	log        *slog.Logger
}

func New(parserOpts parser.Options, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{parserOpts: parserOpts, log: log}
}

// Load parses every file under root whose extension is allowed. A missing or
// non-directory root is an error; per-file parse failures are recorded in
// the result and logged.
func (l *Loader) Load(ctx context.Context, root string, opts Options) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: source directory %s", rag.ErrNotFound, root)
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", rag.ErrNotFound, root)
	}

	allowed := extensionSet(opts.Extensions)
	paths, err := discover(root, allowed, opts.Recursive)
	if err != nil {
		return nil, err
	}

	l.log.Info("loading documents", "root", root, "files", len(paths), "recursive", opts.Recursive)
	return l.load(ctx, root, paths, opts.Workers)
}

// LoadFiles parses an explicit list of files. IDs are still derived relative
// to root so they match a full Load of the same directory.
func (l *Loader) LoadFiles(ctx context.Context, root string, paths []string, workers int) (*Result, error) {
	return l.load(ctx, root, paths, workers)
}

func (l *Loader) load(ctx context.Context, root string, paths []string, workers int) (*Result, error) {
	if workers <= 0 {
		workers = 4
	}

	res := &Result{Root: root}
	warned := make(map[string]bool)
	var work []string
	for _, p := range paths {
		if _, ok := rag.FormatForPath(p); !ok {
			ext := strings.ToLower(filepath.Ext(p))
			if !warned[ext] {
				l.log.Warn("unsupported file extension, skipping", "extension", ext)
				warned[ext] = true
			}
			res.Skipped = append(res.Skipped, p)
			continue
		}
		work = append(work, p)
	}

	results := make([]FileResult, len(work))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, p := range work {
		if ctx.Err() != nil {
			results[i] = FileResult{Path: p, Err: &rag.ParseError{Path: p, Err: ctx.Err()}}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p string) {
			defer wg.Done()
			defer func() { <-sem }()
			doc, err := l.loadFile(root, p)
			if err != nil {
				results[i] = FileResult{Path: p, Err: &rag.ParseError{Path: p, Err: err}}
				return
			}
			results[i] = FileResult{Path: p, Doc: doc}
		}(i, p)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	res.Files = results

	for _, f := range res.Failed() {
		l.log.Warn("failed to load file", "path", f.Path, "error", f.Err)
	}
	loaded, failed := res.Counts()
	if loaded == 0 {
		l.log.Warn("no documents loaded", "root", root, "failed", failed)
	} else {
		l.log.Info("documents loaded", "loaded", loaded, "failed", failed, "skipped", len(res.Skipped))
	}
	return res, nil
}

func (l *Loader) loadFile(root, path string) (*rag.RawDocument, error) {
	p, format, err := parser.ForFile(path, l.parserOpts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := p.Parse(f)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	title := parsed.Title
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	doc := &rag.RawDocument{
		ID:          rag.DocumentID(rel),
		Title:       title,
		Text:        parsed.Text,
		SourcePath:  path,
		Format:      format,
		ContentHash: rag.HashHex([]byte(parsed.Text)),
	}
	if parsed.Pages > 0 {
		doc.Metadata = map[string]any{"pages": parsed.Pages}
	}
	return doc, nil
}

// discover lists files under root whose lowercased extension is in allowed.
func discover(root string, allowed map[string]bool, recursive bool) ([]string, error) {
	var paths []string
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", root, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && allowed[strings.ToLower(filepath.Ext(e.Name()))] {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
		return paths, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && allowed[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// Allowed reports whether path has one of the given extensions.
func Allowed(path string, extensions []string) bool {
	return extensionSet(extensions)[strings.ToLower(filepath.Ext(path))]
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
