package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DocumentToolName = "read_document"

// DocumentTool legge file di testo da una directory base
type DocumentTool struct {
	baseDir    string
	realBase   string // baseDir con i symlink risolti
	defaultDoc string
}

// NewDocumentTool crea il tool di lettura documenti.
// defaultDoc è relativo a baseDir ed è letto quando non viene indicato un path.
func NewDocumentTool(baseDir, defaultDoc string) (*DocumentTool, error) {
	if baseDir == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("invalid document directory: %w", err)
	}
	// The directory may not exist yet; reads will fail until it does.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		real = abs
	}
	return &DocumentTool{baseDir: abs, realBase: real, defaultDoc: defaultDoc}, nil
}

func (t *DocumentTool) Name() string { return DocumentToolName }

func (t *DocumentTool) Description() string {
	if t.defaultDoc != "" {
		return fmt.Sprintf("Read a reference document and return its full text. Without a path it reads the house style guidelines (%s).", t.defaultDoc)
	}
	return "Read a reference document and return its full text."
}

func (t *DocumentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Document path relative to the document directory. Optional.",
			},
		},
	}
}

// BaseDir restituisce la directory base assoluta
func (t *DocumentTool) BaseDir() string {
	return t.baseDir
}

// Execute legge il documento richiesto o quello di default
func (t *DocumentTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := stringArg(args, "path", false)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = t.defaultDoc
	}
	if path == "" {
		return "", fmt.Errorf("%w: no path given and no default document", ErrInvalidArguments)
	}

	full, err := t.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read document %q: %w", path, err)
	}
	return string(data), nil
}

// resolve risolve path dentro baseDir. Il controllo vale sia sul testo del
// path sia sul file reale, così un symlink non porta fuori dalla directory.
func (t *DocumentTool) resolve(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(t.baseDir, full)
	}
	full = filepath.Clean(full)

	if !within(t.baseDir, full) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideBase, path)
	}

	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", fmt.Errorf("failed to read document %q: %w", path, err)
	}
	if !within(t.realBase, real) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideBase, path)
	}
	return real, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
