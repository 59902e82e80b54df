// Package report renders the operator-facing console output for both
// sender and receiver sessions: completion/farewell banners, accept
// prompts, and aligned transfer statistics. It is the one place in
// this repository that talks directly to a terminal.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gorgzorg/gorgzorg/internal/util"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
)

// Reporter writes styled progress and status lines to an output stream
// and reads accept/deny decisions from an input stream. The zero value
// is not usable; construct one with New.
type Reporter struct {
	out     io.Writer
	in      *bufio.Reader
	verbose bool
}

// New builds a Reporter. verbose gates the per-item Verbose lines; the
// completion/farewell/prompt lines always print.
func New(out io.Writer, in io.Reader, verbose bool) *Reporter {
	return &Reporter{out: out, in: bufio.NewReader(in), verbose: verbose}
}

// GorgingCompleted announces a single item fully sent.
func (r *Reporter) GorgingCompleted(logicalPath string) {
	fmt.Fprintln(r.out, successStyle.Render("Gorging completed"), logicalPath)
}

// GorgingGoodbye announces the end of a sender session.
func (r *Reporter) GorgingGoodbye() {
	fmt.Fprintln(r.out, successStyle.Render("Gorging goodbye"))
}

// ZorgingCompleted announces one item fully written to disk, with the
// path it was saved to.
func (r *Reporter) ZorgingCompleted(savedPath string) {
	fmt.Fprintln(r.out, successStyle.Render("Zorging completed"), savedPath)
}

// ZorgingFarewell announces receipt of the end-of-transfer sentinel.
func (r *Reporter) ZorgingFarewell() {
	fmt.Fprintln(r.out, successStyle.Render("Zorging farewell"))
}

// Cancelled announces a CANCEL_SEND-triggered exit on the sender.
func (r *Reporter) Cancelled() {
	fmt.Fprintln(r.out, infoStyle.Render("Zorg declined — gorging cancelled"))
}

// Errorf announces a fatal error.
func (r *Reporter) Errorf(format string, args ...any) {
	fmt.Fprintln(r.out, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Skipf announces a non-fatal per-item skip during a directory walk.
func (r *Reporter) Skipf(format string, args ...any) {
	fmt.Fprintln(r.out, mutedStyle.Render("skipping: "+fmt.Sprintf(format, args...)))
}

// Verbosef prints a line only when the Reporter was constructed with
// verbose output enabled.
func (r *Reporter) Verbosef(format string, args ...any) {
	if !r.verbose {
		return
	}
	fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Stats prints the final sender-side transfer summary with its two
// columns aligned, in the teacher's PadRight idiom.
func (r *Reporter) Stats(itemCount int, totalBytes int64, elapsedSeconds float64) {
	rows := [][2]string{
		{"items sent", fmt.Sprintf("%d", itemCount)},
		{"total size", util.FormatSize(totalBytes)},
		{"elapsed", fmt.Sprintf("%.2fs", elapsedSeconds)},
	}
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}
	for _, row := range rows {
		fmt.Fprintln(r.out, mutedStyle.Render(util.PadRight(row[0], width+1)+row[1]))
	}
}

// AskAccept prompts the operator to accept or deny one item and
// returns true for accept. Any answer other than a leading "y"/"Y"
// (including a bare newline) denies. Size is pre-formatted by the
// caller via util.FormatSize so the state machine owns the ≥1 GiB
// threshold decision, not this package.
func (r *Reporter) AskAccept(name, size string) bool {
	fmt.Fprintf(r.out, "Do you want to zorg %s with %s? (y/N) ", name, size)
	line, _ := r.in.ReadString('\n')
	answer := strings.TrimSpace(line)
	return strings.HasPrefix(answer, "y") || strings.HasPrefix(answer, "Y")
}
