// Package config turns validated CLI flags into the immutable
// configuration structs the sender and receiver sessions are
// constructed from (spec.md §6). Validation — IP policy, port range,
// mutually-exclusive archive flags, destination-directory existence —
// happens here so that session code never has to re-check its inputs.
package config

import (
	"fmt"

	"github.com/gorgzorg/gorgzorg/internal/archive"
	"github.com/gorgzorg/gorgzorg/internal/ipnet"
	"github.com/gorgzorg/gorgzorg/internal/util"
	"github.com/gorgzorg/gorgzorg/internal/wire"
)

// DefaultPort is the well-known GorgZorg port, used when -p is omitted.
const DefaultPort = 10000

// DefaultChunkKiB is the sender's default body chunk size, used when
// -bs is omitted.
const DefaultChunkKiB = 4

// Sender is the validated, immutable configuration for a gorg session.
type Sender struct {
	TargetIP   string
	Port       int
	SourcePath string
	GlobFilter string
	Archive    archive.Mode
	ChunkBytes int
	Verbose    bool
}

// Receiver is the validated, immutable configuration for a zorg session.
type Receiver struct {
	BindIP       string
	Port         int
	SaveRoot     string
	AlwaysAccept bool
	QuitAfter    bool
	Verbose      bool
}

// NewSender validates raw flag values and builds a Sender config.
// globFilter, when non-empty, overrides the filename-match pattern that
// sender.Run otherwise splits out of sourcePath itself; the CLI passes
// it empty.
func NewSender(targetIP string, port int, sourcePath, globFilter string, useTar, useZip bool, chunkKiB int, verbose bool) (Sender, error) {
	if err := ipnet.ValidatePrivate(targetIP); err != nil {
		return Sender{}, fmt.Errorf("%w: %w", wire.ErrInvalidAddress, err)
	}
	if err := validatePort(port); err != nil {
		return Sender{}, err
	}
	if sourcePath == "" {
		return Sender{}, fmt.Errorf("%w: -g is required", wire.ErrInvalidArgs)
	}
	if useTar && useZip {
		return Sender{}, fmt.Errorf("%w: -tar and -zip are mutually exclusive", wire.ErrInvalidArgs)
	}
	if chunkKiB <= 0 {
		return Sender{}, fmt.Errorf("%w: -bs must be positive", wire.ErrInvalidArgs)
	}

	mode := archive.None
	switch {
	case useZip:
		mode = archive.Gzip
	case useTar:
		mode = archive.Tar
	}

	return Sender{
		TargetIP:   targetIP,
		Port:       port,
		SourcePath: sourcePath,
		GlobFilter: globFilter,
		Archive:    mode,
		ChunkBytes: chunkKiB * 1024,
		Verbose:    verbose,
	}, nil
}

// NewReceiver validates raw flag values and builds a Receiver config.
// An empty bindIP defers address selection to ipnet.FirstPrivateAddress
// at session start, per spec.md §4.3 step 1.
func NewReceiver(bindIP string, port int, saveRoot string, alwaysAccept, quitAfter, verbose bool) (Receiver, error) {
	if bindIP != "" {
		if err := ipnet.ValidatePrivate(bindIP); err != nil {
			return Receiver{}, fmt.Errorf("%w: %w", wire.ErrInvalidAddress, err)
		}
	}
	if err := validatePort(port); err != nil {
		return Receiver{}, err
	}
	if saveRoot != "" {
		exists, isDir, err := util.CheckDirectory(saveRoot)
		if err != nil {
			return Receiver{}, fmt.Errorf("%w: %w", wire.ErrInvalidArgs, err)
		}
		if !exists {
			return Receiver{}, fmt.Errorf("%w: -d %s does not exist", wire.ErrInvalidArgs, saveRoot)
		}
		if !isDir {
			return Receiver{}, fmt.Errorf("%w: -d %s is not a directory", wire.ErrInvalidArgs, saveRoot)
		}
	}

	return Receiver{
		BindIP:       bindIP,
		Port:         port,
		SaveRoot:     saveRoot,
		AlwaysAccept: alwaysAccept,
		QuitAfter:    quitAfter,
		Verbose:      verbose,
	}, nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1..65535", wire.ErrInvalidArgs, port)
	}
	return nil
}

// SplitGlob separates a source path that ends in a glob pattern (e.g.
// "dir/*.txt") into the literal directory to walk and the filename
// filter to apply to it, per spec.md §4.2 step 1. A path with no glob
// metacharacter in its final component is returned unchanged with an
// empty filter.
func SplitGlob(sourcePath string) (realPath, filter string) {
	return splitGlob(sourcePath)
}
