// Package enumerator walks a filesystem path into the ordered sequence
// of directory-marker and file items the sender feeds into the wire
// protocol (spec.md §4.4).
package enumerator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Kind tags an Item as a directory marker or a file.
type Kind int

const (
	KindDir Kind = iota
	KindFile
)

// Item is one entry the sender will turn into a wire.Header (and, for
// files, a body). LogicalPath is forward-slash separated and rooted at
// the basename of the walk's source, exactly as the sender sees it on
// its own filesystem — sanitization happens on the receiver, not here.
type Item struct {
	Kind        Kind
	LogicalPath string
	AbsPath     string
	Size        int64

	// MimeType is sniffed for files only and is display-only: it never
	// goes on the wire (see SPEC_FULL.md §3), it just lets verbose
	// sender output show what kind of file is being sent.
	MimeType string
}

// Walk performs a depth-first traversal of root, skipping "." and "..",
// emitting a directory marker for root itself (the walk's master
// directory) before any of its contents, then DirMarker/File items for
// every descendant in platform directory-enumeration order. filter, if
// non-empty, is a glob pattern (per filepath.Match) applied to every
// directory entry's name at every depth.
//
// The returned error channel receives at most one value, sent before
// either channel is closed, so a caller that drains the item channel and
// then reads the error channel sees it.
func Walk(root, filter string) (<-chan Item, <-chan error) {
	items := make(chan Item)
	errc := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errc)

		base := filepath.Base(filepath.Clean(root))
		items <- Item{Kind: KindDir, LogicalPath: base + "/.", AbsPath: root}

		if err := walkDir(root, base, filter, items); err != nil {
			errc <- err
		}
	}()

	return items, errc
}

func walkDir(absDir, logicalDir, filter string, items chan<- Item) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", absDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}
		if filter != "" {
			matched, matchErr := filepath.Match(filter, name)
			if matchErr != nil {
				return fmt.Errorf("invalid filter %q: %w", filter, matchErr)
			}
			if !matched {
				continue
			}
		}

		absPath := filepath.Join(absDir, name)
		logicalPath := logicalDir + "/" + name

		if entry.IsDir() {
			items <- Item{Kind: KindDir, LogicalPath: logicalPath, AbsPath: absPath}
			if err := walkDir(absPath, logicalPath, filter, items); err != nil {
				return err
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", absPath, err)
		}

		items <- Item{
			Kind:        KindFile,
			LogicalPath: logicalPath,
			AbsPath:     absPath,
			Size:        info.Size(),
			MimeType:    SniffMimeType(absPath),
		}
	}

	return nil
}

// SniffMimeType is best-effort and display-only; a failure to sniff is
// not a transfer error.
func SniffMimeType(absPath string) string {
	mt, err := mimetype.DetectFile(absPath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
