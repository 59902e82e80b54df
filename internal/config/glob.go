package config

import (
	"path/filepath"
	"strings"
)

// globMeta are the filepath.Match metacharacters that mark a path's
// final component as a filter rather than a literal name.
const globMeta = "*?["

func splitGlob(sourcePath string) (realPath, filter string) {
	base := filepath.Base(sourcePath)
	if !strings.ContainsAny(base, globMeta) {
		return sourcePath, ""
	}
	dir := filepath.Dir(sourcePath)
	return dir, base
}
