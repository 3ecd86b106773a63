package buildplan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// enumerateContext walks projectDir (and any extraDirs, in the order
// given) through fs, producing a deterministic, exclusion-filtered build
// context manifest. Excluded files are never opened for size — only
// os.FileInfo.Size() from the directory walk is read — so the planner
// never reads excluded file content into memory (spec.md §4.2).
func enumerateContext(fs afero.Fs, projectDir string, extraDirs []string, exclusions []string) ([]BuildContextEntry, error) {
	var entries []BuildContextEntry

	if err := walkInto(fs, projectDir, "", exclusions, &entries); err != nil {
		return nil, err
	}
	for _, dir := range extraDirs {
		absDir := filepath.Join(projectDir, dir)
		exists, err := afero.DirExists(fs, absDir)
		if err != nil {
			return nil, calerr.Wrap(calerr.RecipeInvalid, "buildplan.enumerateContext", err)
		}
		if !exists {
			return nil, calerr.New(calerr.RecipeInvalid, "buildplan.enumerateContext",
				"declared extra directory does not exist: "+dir, nil)
		}
		if err := walkInto(fs, absDir, dir, exclusions, &entries); err != nil {
			return nil, err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

func walkInto(fs afero.Fs, root string, relPrefix string, exclusions []string, out *[]BuildContextEntry) error {
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPrefix != "" {
			rel = filepath.Join(relPrefix, rel)
		}
		if isExcluded(rel, exclusions) {
			return nil
		}
		*out = append(*out, BuildContextEntry{RelPath: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
}

// isExcluded reports whether relPath matches any .dockerignore-equivalent
// pattern. Patterns are plain filepath.Match globs applied against the
// whole relative path, plus a simple directory-prefix match when a
// pattern names a leading path segment (e.g. "node_modules" excludes
// "node_modules/x.js").
func isExcluded(relPath string, patterns []string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(pattern, "/")
		if ok, _ := filepath.Match(pattern, relPath); ok {
			return true
		}
		if strings.HasPrefix(relPath, pattern+"/") {
			return true
		}
	}
	return false
}
