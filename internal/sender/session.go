// Package sender drives the gorg side of a transfer: resolve the
// source into an ordered item sequence, open one TCP connection, frame
// each item and honor the receiver's accept/deny replies (spec.md
// §4.2).
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gorgzorg/gorgzorg/internal/archive"
	"github.com/gorgzorg/gorgzorg/internal/config"
	"github.com/gorgzorg/gorgzorg/internal/enumerator"
	"github.com/gorgzorg/gorgzorg/internal/report"
	"github.com/gorgzorg/gorgzorg/internal/util"
	"github.com/gorgzorg/gorgzorg/internal/wire"
)

// connectTimeout bounds the initial dial, per spec.md §5's "bounded
// connect timeout (several seconds)".
const connectTimeout = 5 * time.Second

// Session is one gorg run: constructed from a validated config, it
// lives for exactly one connect-send-close cycle. log carries the
// diagnostic event stream (connect, per-item accept/deny, streaming,
// errors) separately from rep, which is the user-facing transcript.
type Session struct {
	cfg config.Sender
	rep *report.Reporter
	log *slog.Logger
}

// New builds a sender Session. A nil log falls back to slog.Default().
func New(cfg config.Sender, rep *report.Reporter, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, rep: rep, log: log}
}

// Run executes the full gorg procedure: archive (if requested), dial,
// frame every item, send the end sentinel, report statistics. Its
// returned error is always one of the wire sentinel error kinds (via
// errors.Is), which the caller maps to a process exit code.
func (s *Session) Run(ctx context.Context) error {
	realPath, filter := config.SplitGlob(s.cfg.SourcePath)
	if s.cfg.GlobFilter != "" {
		filter = s.cfg.GlobFilter
	}

	sourcePath := realPath
	var archiveCleanup func()
	if s.cfg.Archive != archive.None {
		tmpPath, cleanup, err := archive.Create(s.cfg.Archive, realPath, filter)
		if err != nil {
			s.log.Error("archive failed", "source", realPath, "error", err)
			return fmt.Errorf("%w: %w", wire.ErrArchiveFailed, err)
		}
		sourcePath = tmpPath
		archiveCleanup = cleanup
		filter = ""
	}
	if archiveCleanup != nil {
		defer archiveCleanup()
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		s.log.Error("open source failed", "path", sourcePath, "error", err)
		return fmt.Errorf("%w: %w", wire.ErrOpenSourceFailed, err)
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// One ReplyReader spans the whole connection: the coalesced-token
	// case (spec.md §4.1) only falls out naturally if the same
	// buffered reader sees every reply, not one recreated per item.
	rr := wire.NewReplyReader(conn)

	start := time.Now()
	var itemCount int
	var totalBytes int64

	if info.IsDir() {
		itemCount, totalBytes, err = s.sendWalk(conn, rr, sourcePath, filter)
	} else {
		itemCount, totalBytes, err = s.sendSingleFile(conn, rr, sourcePath)
	}
	if err != nil {
		s.log.Error("session failed", "error", err)
		return err
	}

	if _, werr := wire.WriteHeader(conn, wire.EndSentinel, true, 0); werr != nil {
		s.log.Error("failed to write end sentinel", "error", werr)
		return fmt.Errorf("%w: %w", wire.ErrPeerClosed, werr)
	}

	s.rep.GorgingGoodbye()
	if s.cfg.Verbose {
		s.rep.Stats(itemCount, totalBytes, time.Since(start).Seconds())
	}
	s.log.Info("gorging finished", "items", itemCount, "bytes", totalBytes, "elapsed", time.Since(start))
	return nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.TargetIP, fmt.Sprintf("%d", s.cfg.Port))
	s.log.Debug("connecting", "address", addr, "timeout", connectTimeout)

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(dialCtx)
	var conn net.Conn
	g.Go(func() error {
		d := net.Dialer{}
		c, err := d.DialContext(gctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error("connect failed", "address", addr, "error", err)
		return nil, fmt.Errorf("%w: %w", wire.ErrConnectFailed, err)
	}
	s.log.Debug("connected", "address", addr)
	return conn, nil
}

// sendSingleFile sends one FileBody item (single_transfer=true) followed
// by the caller's End sentinel.
func (s *Session) sendSingleFile(conn net.Conn, rr *wire.ReplyReader, path string) (itemCount int, totalBytes int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		s.log.Error("open source failed", "path", path, "error", err)
		return 0, 0, fmt.Errorf("%w: %w", wire.ErrOpenSourceFailed, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.log.Error("stat source failed", "path", path, "error", err)
		return 0, 0, fmt.Errorf("%w: %w", wire.ErrOpenSourceFailed, err)
	}

	logicalPath := info.Name()
	ok, err := s.sendItem(conn, rr, logicalPath, true, f, info.Size(), enumerator.SniffMimeType(path))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		s.rep.Cancelled()
		return 0, 0, wire.ErrCancelled
	}
	s.rep.GorgingCompleted(logicalPath)
	return 1, info.Size(), nil
}

// sendWalk sends a directory-marker for the walk root followed by the
// depth-first item stream the enumerator produces. On any early return
// (error or CANCEL_SEND) it drains the remaining items so the Walk
// goroutine, blocked trying to send on its unbuffered channel, can
// observe the drain and exit instead of leaking for the life of the
// process — sendWalk can then be called again safely.
func (s *Session) sendWalk(conn net.Conn, rr *wire.ReplyReader, root, filter string) (itemCount int, totalBytes int64, err error) {
	items, errc := enumerator.Walk(root, filter)
	defer drain(items)

	for item := range items {
		switch item.Kind {
		case enumerator.KindDir:
			ok, err := s.sendItem(conn, rr, wire.TagDir(item.LogicalPath), false, nil, 0, "")
			if err != nil {
				return itemCount, totalBytes, err
			}
			if !ok {
				s.rep.Cancelled()
				s.log.Info("walk cancelled by peer", "path", item.LogicalPath)
				return itemCount, totalBytes, wire.ErrCancelled
			}
			itemCount++

		case enumerator.KindFile:
			f, openErr := os.Open(item.AbsPath)
			if openErr != nil {
				s.log.Warn("skipping unopenable item", "path", item.LogicalPath, "error", openErr)
				s.rep.Skipf("%s: %v", item.LogicalPath, openErr)
				continue
			}
			ok, err := func() (bool, error) {
				defer f.Close()
				return s.sendItem(conn, rr, item.LogicalPath, false, f, item.Size, item.MimeType)
			}()
			if err != nil {
				return itemCount, totalBytes, err
			}
			if !ok {
				s.rep.Cancelled()
				s.log.Info("walk cancelled by peer", "path", item.LogicalPath)
				return itemCount, totalBytes, wire.ErrCancelled
			}
			s.rep.GorgingCompleted(item.LogicalPath)
			itemCount++
			totalBytes += item.Size
		}
	}
	if err := <-errc; err != nil {
		s.log.Error("walk failed", "root", root, "error", err)
		return itemCount, totalBytes, fmt.Errorf("%w: %w", wire.ErrOpenSourceFailed, err)
	}
	return itemCount, totalBytes, nil
}

// drain consumes and discards every remaining value on items, unblocking
// enumerator.Walk's goroutine if the caller stopped ranging over items
// before the walk finished on its own.
func drain(items <-chan enumerator.Item) {
	for range items {
	}
}

// sendItem writes one header frame, waits for the accept/deny reply,
// and — if accepted — streams the body (when body is non-nil) and waits
// for the completion reply, which the receiver also sends after
// creating a directory. It returns ok=false on CANCEL_SEND, which
// is never itself an error: the caller decides what that means for the
// rest of the walk.
func (s *Session) sendItem(conn net.Conn, rr *wire.ReplyReader, logicalPath string, singleTransfer bool, body *os.File, size int64, mimeType string) (ok bool, err error) {
	if _, err := wire.WriteHeader(conn, logicalPath, singleTransfer, size); err != nil {
		return false, fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
	}

	reply, err := rr.Next()
	if err != nil {
		return false, fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
	}
	if reply == wire.TokenKoSend {
		s.log.Info("item denied", "path", logicalPath)
		return false, nil
	}
	if reply != wire.TokenOkSend {
		return false, fmt.Errorf("%w: unexpected reply %q waiting for OK_SEND", wire.ErrPeerClosed, reply)
	}
	s.log.Debug("item accepted", "path", logicalPath, "size", size)

	if body != nil {
		if err := s.streamBody(conn, logicalPath, mimeType, body); err != nil {
			return false, err
		}
	}

	if reply, err := rr.Next(); err != nil {
		return false, fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
	} else if reply != wire.TokenOk {
		return false, fmt.Errorf("%w: unexpected reply %q waiting for OK", wire.ErrPeerClosed, reply)
	}
	return true, nil
}

func (s *Session) streamBody(conn net.Conn, logicalPath, mimeType string, body *os.File) error {
	s.log.Debug("streaming body", "path", logicalPath, "chunk_bytes", s.cfg.ChunkBytes, "mime_type", mimeType)
	buf := make([]byte, s.cfg.ChunkBytes)
	var sent int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := conn.Write(buf[:n]); writeErr != nil {
				s.log.Error("write body failed", "path", logicalPath, "error", writeErr)
				return fmt.Errorf("%w: %w", wire.ErrPeerClosed, writeErr)
			}
			sent += int64(n)
			if mimeType != "" {
				s.rep.Verbosef("wrote %s of %s (%s)", util.FormatSize(int64(n)), body.Name(), mimeType)
			} else {
				s.rep.Verbosef("wrote %s of %s", util.FormatSize(int64(n)), body.Name())
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.log.Debug("body streamed", "path", logicalPath, "bytes", sent)
				return nil
			}
			s.log.Error("read source failed", "path", logicalPath, "error", readErr)
			return fmt.Errorf("%w: %w", wire.ErrOpenSourceFailed, readErr)
		}
	}
}
