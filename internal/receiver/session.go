// Package receiver drives the zorg side of a transfer: listen for one
// connection at a time, decode framed items, prompt the operator, and
// materialize directories and files under the configured save root
// (spec.md §4.3).
package receiver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gorgzorg/gorgzorg/internal/config"
	"github.com/gorgzorg/gorgzorg/internal/ipnet"
	"github.com/gorgzorg/gorgzorg/internal/pathutil"
	"github.com/gorgzorg/gorgzorg/internal/report"
	"github.com/gorgzorg/gorgzorg/internal/util"
	"github.com/gorgzorg/gorgzorg/internal/wire"
)

// ErrBusy is returned by Serve when this Session is already running one
// accept loop and a second call comes in on top of it.
var ErrBusy = errors.New("a gorgzorg session is already running")

// Session is one zorg run: bound at construction time, it accepts
// connections sequentially until quit_after tells it to stop. running
// guards Serve itself, not the connections within it — the accept loop
// is already sequential — against being entered twice concurrently on
// the same Session. log carries the diagnostic event stream (bind,
// per-connection accept/deny, body writes, errors) separately from rep,
// the user-facing transcript.
type Session struct {
	cfg     config.Receiver
	rep     *report.Reporter
	log     *slog.Logger
	running atomic.Bool
}

// New builds a receiver Session. A nil log falls back to slog.Default().
func New(cfg config.Receiver, rep *report.Reporter, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, rep: rep, log: log}
}

// itemState tracks the in-flight item exactly as spec.md §3 describes:
// reset between items, carried across reads within one item.
type itemState struct {
	bytesReceived   int64
	totalSize       int64
	currentLogical  string
	currentBasename string
	currentParent   string
	receivingDir    bool
	createMasterDir bool
	masterDir       string
	askForAccept    bool
}

// Serve runs the listen/accept loop. A Session runs at most one Serve
// at a time; a second call while one is already active fails fast with
// ErrBusy rather than racing two listeners against the same config.
func (s *Session) Serve() error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("rejected serve call: a session is already running")
		return ErrBusy
	}
	defer s.running.Store(false)
	return s.serve()
}

func (s *Session) serve() error {
	bindIP := s.cfg.BindIP
	if bindIP == "" {
		picked, err := ipnet.FirstPrivateAddress()
		if err != nil {
			s.log.Error("auto-pick bind address failed", "error", err)
			return fmt.Errorf("%w: %w", wire.ErrInvalidAddress, err)
		}
		bindIP = picked
	}

	if s.cfg.SaveRoot != "" {
		if err := os.Chdir(s.cfg.SaveRoot); err != nil {
			s.log.Error("chdir to save root failed", "root", s.cfg.SaveRoot, "error", err)
			return fmt.Errorf("%w: %w", wire.ErrInvalidArgs, err)
		}
	}

	addr := net.JoinHostPort(bindIP, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("bind failed", "address", addr, "error", err)
		return fmt.Errorf("%w: %w", wire.ErrBindInUse, err)
	}
	defer ln.Close()

	s.rep.Verbosef("zorging on %s", addr)
	s.log.Info("zorging", "address", addr, "quit_after", s.cfg.QuitAfter)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.log.Error("accept failed", "error", err)
			return fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
		}
		s.log.Debug("accepted connection", "remote", conn.RemoteAddr())

		connStart := time.Now()
		farewell, err := s.handleConn(conn)
		conn.Close()
		if err != nil {
			s.log.Error("session failed", "remote", conn.RemoteAddr(), "error", err)
			return err
		}
		s.log.Debug("connection closed", "remote", conn.RemoteAddr(), "farewell", farewell, "elapsed", time.Since(connStart))
		if farewell && s.cfg.QuitAfter {
			return nil
		}
	}
}

// handleConn drives one connection's AWAIT_HEADER/PROMPTING/ACCEPTED/
// WRITING_BODY/ITEM_DONE cycle until the end sentinel arrives
// (FAREWELL, returns farewell=true) or the socket closes.
func (s *Session) handleConn(conn net.Conn) (farewell bool, err error) {
	st := itemState{askForAccept: true}

	for {
		header, err := wire.ReadHeader(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// The peer closed without ever sending the end sentinel —
				// notably, what happens right after a mid-walk
				// CANCEL_SEND, where the sender exits instead of
				// finishing the session. Treat it the same as a clean
				// farewell rather than a fatal error.
				s.log.Debug("connection closed without end sentinel", "error", err)
				return false, nil
			}
			return false, fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
		}

		if header.IsEnd() {
			s.rep.ZorgingFarewell()
			return true, nil
		}

		if err := s.startItem(conn, header, &st); err != nil {
			return false, err
		}
	}
}

// startItem implements the "item start" step of spec.md §4.3.4: split
// the path, detect the walk-root marker and directory tag, apply the
// prompt policy, sanitize, and either materialize a directory or open
// the destination file and read its body.
func (s *Session) startItem(conn net.Conn, header wire.Header, st *itemState) error {
	logicalPath := header.Path
	st.receivingDir = wire.HasDirTag(logicalPath)
	if st.receivingDir {
		logicalPath = wire.StripDirTag(logicalPath)
	}

	st.currentLogical = logicalPath
	st.currentParent, st.currentBasename = wire.SplitParentBase(logicalPath)
	st.createMasterDir = wire.IsWalkRootMarker(st.currentBasename)

	isNewTopLevel := header.SingleTransfer || st.createMasterDir
	if isNewTopLevel {
		st.askForAccept = true
	}

	if !s.cfg.AlwaysAccept && st.askForAccept {
		size := util.FormatSize(header.BodyLen())
		if !s.rep.AskAccept(displayName(st.currentBasename, logicalPath), size) {
			s.log.Info("item denied", "path", logicalPath)
			return wire.WriteToken(conn, wire.TokenKoSend)
		}
		st.askForAccept = false
	}
	s.log.Debug("item accepted", "path", logicalPath, "size", header.BodyLen())

	if err := wire.WriteToken(conn, wire.TokenOkSend); err != nil {
		return fmt.Errorf("%w: %w", wire.ErrPeerClosed, err)
	}

	sanitized := pathutil.Sanitize(logicalPath)
	if st.masterDir != "" {
		sanitized = pathutil.UnderRoot(st.masterDir, sanitized)
	}

	if st.createMasterDir {
		st.masterDir = sanitized
	}

	if st.createMasterDir || st.receivingDir {
		if err := os.MkdirAll(sanitized, 0o755); err != nil {
			return fmt.Errorf("%w: %w", wire.ErrWriteDestFailed, err)
		}
		return wire.WriteToken(conn, wire.TokenOk)
	}

	return s.receiveBody(conn, sanitized, header.BodyLen(), st)
}

func (s *Session) receiveBody(conn net.Conn, destPath string, size int64, st *itemState) error {
	s.log.Debug("writing body", "path", destPath, "size", size)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		s.log.Error("create destination directory failed", "path", destPath, "error", err)
		return fmt.Errorf("%w: %w", wire.ErrWriteDestFailed, err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		s.log.Error("create destination file failed", "path", destPath, "error", err)
		return fmt.Errorf("%w: %w", wire.ErrWriteDestFailed, err)
	}
	defer f.Close()

	st.totalSize = size
	st.bytesReceived = 0

	if size > 0 {
		if _, err := io.CopyN(f, conn, size); err != nil {
			s.log.Error("write body failed", "path", destPath, "error", err)
			return fmt.Errorf("%w: %w", wire.ErrWriteDestFailed, err)
		}
		st.bytesReceived = size
	}

	s.rep.ZorgingCompleted(destPath)
	s.log.Debug("body written", "path", destPath, "bytes", st.bytesReceived)
	st.bytesReceived, st.totalSize = 0, 0

	return wire.WriteToken(conn, wire.TokenOk)
}

func displayName(basename, logicalPath string) string {
	if basename != "" {
		return basename
	}
	return logicalPath
}
