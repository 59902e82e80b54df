package receiver

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorgzorg/gorgzorg/internal/archive"
	"github.com/gorgzorg/gorgzorg/internal/config"
	"github.com/gorgzorg/gorgzorg/internal/report"
	"github.com/gorgzorg/gorgzorg/internal/sender"
)

// freePort asks the OS for an ephemeral port by briefly listening on it.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// TestQuitAfterExitsReceiverAfterOneSession exercises quit_after end to
// end over real sockets: a receiver bound with -q accepts exactly one
// connection, completes it, and shuts its listener down, so a second
// sender attempt sees connection-refused rather than a hung dial or a
// second accepted transfer.
func TestQuitAfterExitsReceiverAfterOneSession(t *testing.T) {
	chdirTemp(t)
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	rcfg, err := config.NewReceiver("127.0.0.1", port, "", true, true, false)
	require.NoError(t, err)
	rrep := report.New(&bytes.Buffer{}, strings.NewReader(""), false)
	rsess := New(rcfg, rrep, discardLogger())

	serveDone := make(chan error, 1)
	go func() { serveDone <- rsess.Serve() }()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	src := writeTempFile(t, "quit-after.txt", "first session\n")
	scfg, err := config.NewSender("127.0.0.1", port, src, "", false, false, 4, false)
	require.NoError(t, err)
	scfg.Archive = archive.None
	srep := report.New(&bytes.Buffer{}, strings.NewReader(""), false)

	require.NoError(t, sender.New(scfg, srep, discardLogger()).Run(context.Background()))

	select {
	case err := <-serveDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not exit after quit_after's first session")
	}

	// The listener quit_after tore down is gone, so a second connection
	// attempt must now be refused.
	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}
