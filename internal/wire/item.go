package wire

import "strings"

// HasDirTag reports whether a header path carries the directory-marker
// tag prefix.
func HasDirTag(path string) bool {
	return strings.HasPrefix(path, DirTagPrefix)
}

// StripDirTag removes the directory-marker tag prefix, if present.
func StripDirTag(path string) string {
	return strings.TrimPrefix(path, DirTagPrefix)
}

// TagDir adds the directory-marker tag prefix.
func TagDir(path string) string {
	return DirTagPrefix + path
}

// SplitParentBase splits a forward-slash logical path on its last
// separator, the way the receiver recovers current_parent_dir and
// current_basename from current_logical_path (spec.md §4.3).
func SplitParentBase(path string) (parent, base string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// IsWalkRootMarker reports whether a basename is the special "."
// basename that marks a walk's root directory item.
func IsWalkRootMarker(base string) bool {
	return base == "."
}
