// Package corpus walks a cloned repository and selects a bounded source-file
// corpus per spec.md §4.3.
package corpus

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/gradeengine/internal/domain"
	"github.com/fairyhunter13/gradeengine/pkg/textx"
)

// maxDepth bounds the directory walk (spec.md §4.3 default).
const maxDepth = 10

// skipDirs names directories never descended into, regardless of depth.
var skipDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	"__pycache__":  true,
}

// allowedExtensions is the fixed source/doc extension allow-list.
var allowedExtensions = map[string]bool{
	".rs": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".go": true, ".java": true, ".kt": true, ".swift": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true,
	".rb": true, ".php": true, ".html": true, ".css": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".md": true,
}

// Reader implements domain.CorpusReader by walking the filesystem.
// Grounded on original_source/src/grade_orchestrator.rs::read_source_files.
type Reader struct{}

// New builds a Reader.
func New() *Reader { return &Reader{} }

// Read implements domain.CorpusReader.
func (r *Reader) Read(ctx domain.Context, rootDir string, maxFiles int) ([]domain.CorpusFile, error) {
	var files []domain.CorpusFile

	root := filepath.Clean(rootDir)
	rootDepth := strings.Count(root, string(filepath.Separator))

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if maxFiles > 0 && len(files) >= maxFiles {
			return filepath.SkipAll
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") || skipDirs[name] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			depth := strings.Count(path, string(filepath.Separator)) - rootDepth
			if depth >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if isBinary(contents) {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = path
		}

		files = append(files, domain.CorpusFile{
			Path:     filepath.ToSlash(relPath),
			Contents: textx.SanitizeText(string(contents)),
		})
		if maxFiles > 0 && len(files) >= maxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return files, nil
	}

	return files, nil
}

// isBinary reports whether content's detected MIME type is not text, to
// skip files that slip past the extension allow-list (e.g. a misnamed
// binary) without erroring the whole walk.
func isBinary(content []byte) bool {
	mt := mimetype.Detect(content)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return false
		}
	}
	return !strings.HasPrefix(mt.String(), "text/")
}
