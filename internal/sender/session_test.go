package sender

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorgzorg/gorgzorg/internal/archive"
	"github.com/gorgzorg/gorgzorg/internal/config"
	"github.com/gorgzorg/gorgzorg/internal/report"
	"github.com/gorgzorg/gorgzorg/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeReceiver plays the receiver side of the protocol over an
// in-process pipe: accept every item (or, with deny, reject every item),
// acknowledge every accepted item with Z_OK, and stop once it reads the
// end sentinel.
func fakeReceiver(t *testing.T, conn net.Conn, deny bool) {
	t.Helper()
	go func() {
		for {
			h, err := wire.ReadHeader(conn)
			if err != nil {
				return
			}
			if h.IsEnd() {
				return
			}
			if deny {
				_ = wire.WriteToken(conn, wire.TokenKoSend)
				continue
			}
			_ = wire.WriteToken(conn, wire.TokenOkSend)
			if h.BodyLen() > 0 {
				buf := make([]byte, h.BodyLen())
				_, _ = io.ReadFull(conn, buf)
			}
			_ = wire.WriteToken(conn, wire.TokenOk)
		}
	}()
}

// fakeReceiverDenyAt plays the receiver side like fakeReceiver but denies
// exactly the item whose logical path (dir tag stripped) equals denyPath,
// accepting everything else — simulating a mid-walk CANCEL_SEND.
func fakeReceiverDenyAt(t *testing.T, conn net.Conn, denyPath string) {
	t.Helper()
	go func() {
		for {
			h, err := wire.ReadHeader(conn)
			if err != nil {
				return
			}
			if h.IsEnd() {
				return
			}
			if wire.StripDirTag(h.Path) == denyPath {
				_ = wire.WriteToken(conn, wire.TokenKoSend)
				continue
			}
			_ = wire.WriteToken(conn, wire.TokenOkSend)
			if h.BodyLen() > 0 {
				buf := make([]byte, h.BodyLen())
				_, _ = io.ReadFull(conn, buf)
			}
			_ = wire.WriteToken(conn, wire.TokenOk)
		}
	}()
}

func newTestSession(t *testing.T, sourcePath string) (*Session, net.Conn, net.Conn) {
	t.Helper()
	cfg, err := config.NewSender("192.168.1.5", 10000, sourcePath, "", false, false, 4, false)
	require.NoError(t, err)
	cfg.Archive = archive.None

	client, srv := net.Pipe()
	rep := report.New(&bytes.Buffer{}, bytes.NewReader(nil), false)
	return New(cfg, rep, discardLogger()), client, srv
}

func TestSendSingleFileCompletesAndSendsEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0o644))

	sess, client, srv := newTestSession(t, path)
	fakeReceiver(t, srv, false)
	defer client.Close()
	defer srv.Close()

	rr := wire.NewReplyReader(client)
	itemCount, totalBytes, err := sess.sendSingleFile(client, rr, path)
	require.NoError(t, err)
	assert.Equal(t, 1, itemCount)
	assert.EqualValues(t, 12, totalBytes)
}

func TestSendSingleFileHonorsDenial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.dat")
	require.NoError(t, os.WriteFile(path, []byte("shh"), 0o644))

	sess, client, srv := newTestSession(t, path)
	fakeReceiver(t, srv, true)
	defer client.Close()
	defer srv.Close()

	rr := wire.NewReplyReader(client)
	_, _, err := sess.sendSingleFile(client, rr, path)
	require.ErrorIs(t, err, wire.ErrCancelled)
}

func writeWalkFixture(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "A")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("xyz"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "c.bin"), make([]byte, 1024), 0o644))
	return root
}

func TestSendWalkSendsEveryItemUnderRoot(t *testing.T) {
	root := writeWalkFixture(t)

	sess, client, srv := newTestSession(t, root)
	fakeReceiver(t, srv, false)
	defer client.Close()
	defer srv.Close()

	rr := wire.NewReplyReader(client)
	itemCount, totalBytes, err := sess.sendWalk(client, rr, root, "")
	require.NoError(t, err)
	// walk-root marker + b.txt + sub dir + sub/c.bin = 4 items.
	assert.Equal(t, 4, itemCount)
	assert.EqualValues(t, 3+1024, totalBytes)
}

// TestSendWalkDrainsOnMidWalkCancel exercises CANCEL_SEND arriving partway
// through a directory walk: sendWalk must return wire.ErrCancelled and,
// per the drain() fix, must not leave enumerator.Walk's goroutine blocked
// forever on the now-abandoned items channel. A second sendWalk call
// over the same root completing cleanly is the observable proof that the
// first walk's goroutine was drained rather than leaked.
func TestSendWalkDrainsOnMidWalkCancel(t *testing.T) {
	root := writeWalkFixture(t)

	sess, client, srv := newTestSession(t, root)
	fakeReceiverDenyAt(t, srv, "A/b.txt")
	defer client.Close()
	defer srv.Close()

	rr := wire.NewReplyReader(client)
	_, _, err := sess.sendWalk(client, rr, root, "")
	require.ErrorIs(t, err, wire.ErrCancelled)

	client.Close()
	srv.Close()

	client2, srv2 := net.Pipe()
	defer client2.Close()
	defer srv2.Close()
	fakeReceiver(t, srv2, false)

	rr2 := wire.NewReplyReader(client2)
	itemCount, _, err := sess.sendWalk(client2, rr2, root, "")
	require.NoError(t, err)
	assert.Equal(t, 4, itemCount)
}

func TestSendWalkAppliesGlobFilter(t *testing.T) {
	root := writeWalkFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignore.log"), []byte("nope"), 0o644))

	sess, client, srv := newTestSession(t, root)
	fakeReceiver(t, srv, false)
	defer client.Close()
	defer srv.Close()

	rr := wire.NewReplyReader(client)
	itemCount, _, err := sess.sendWalk(client, rr, root, "*.txt")
	require.NoError(t, err)
	// walk-root marker + b.txt only: "sub" and "ignore.log" don't match.
	assert.Equal(t, 2, itemCount)
}
