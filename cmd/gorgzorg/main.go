package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/gorgzorg/gorgzorg/internal/config"
	"github.com/gorgzorg/gorgzorg/internal/receiver"
	"github.com/gorgzorg/gorgzorg/internal/report"
	"github.com/gorgzorg/gorgzorg/internal/sender"
	"github.com/gorgzorg/gorgzorg/internal/wire"
)

// version is the single hard-coded constant --version reports; it is
// never exchanged over the wire (spec.md §6).
const version = "1.0.0"

func main() {
	var (
		targetIP     string
		bindIP       string
		bindIPSet    bool
		sourcePath   string
		port         int
		saveRoot     string
		useTar       bool
		useZip       bool
		alwaysAccept bool
		quitAfter    bool
		verbose      bool
		chunkKiB     int
	)

	cmd := &cobra.Command{
		Use:     "gorgzorg",
		Short:   "Point-to-point file transfer over a private IPv4 network",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindIPSet = cmd.Flags().Changed("z")
			if bindIP == " " {
				// -z with no argument: NoOptDefVal's placeholder, meaning
				// "auto-pick" rather than a literal single-space address.
				bindIP = ""
			}
			return run(cmd.Context(), targetIP, bindIP, bindIPSet, sourcePath, port, saveRoot, useTar, useZip, alwaysAccept, quitAfter, verbose, chunkKiB)
		},
	}

	cmd.Flags().StringVarP(&targetIP, "c", "c", "", "sender: target IPv4 address")
	cmd.Flags().StringVarP(&bindIP, "z", "z", "", "receiver: bind IPv4 address (auto-pick if omitted)")
	cmd.Flags().Lookup("z").NoOptDefVal = " "
	cmd.Flags().StringVarP(&sourcePath, "g", "g", "", "sender: file, directory, or glob to send")
	cmd.Flags().IntVarP(&port, "p", "p", config.DefaultPort, "port")
	cmd.Flags().StringVarP(&saveRoot, "d", "d", "", "receiver: root directory for saved files")
	cmd.Flags().BoolVar(&useTar, "tar", false, "sender: archive before send")
	cmd.Flags().BoolVar(&useZip, "zip", false, "sender: gzip+archive before send")
	cmd.Flags().BoolVarP(&alwaysAccept, "y", "y", false, "receiver: auto-accept all")
	cmd.Flags().BoolVarP(&quitAfter, "q", "q", false, "receiver: exit after one completed transfer")
	cmd.Flags().BoolVarP(&verbose, "v", "v", false, "verbose")
	cmd.Flags().IntVar(&chunkKiB, "bs", config.DefaultChunkKiB, "sender: chunk size in KiB")

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run(ctx context.Context, targetIP, bindIP string, bindIPSet bool, sourcePath string, port int, saveRoot string, useTar, useZip, alwaysAccept, quitAfter, verbose bool, chunkKiB int) error {
	rep := report.New(os.Stdout, os.Stdin, verbose)
	log := newLogger(verbose)

	switch {
	case targetIP != "":
		cfg, err := config.NewSender(targetIP, port, sourcePath, "", useTar, useZip, chunkKiB, verbose)
		if err != nil {
			return err
		}
		return sender.New(cfg, rep, log).Run(ctx)

	case bindIPSet || saveRoot != "" || alwaysAccept || quitAfter:
		cfg, err := config.NewReceiver(bindIP, port, saveRoot, alwaysAccept, quitAfter, verbose)
		if err != nil {
			return err
		}
		return receiver.New(cfg, rep, log).Serve()

	default:
		return fmt.Errorf("%w: specify -c <ip> to gorg or -z [ip] to zorg", wire.ErrInvalidArgs)
	}
}

// newLogger builds the diagnostic logger, kept on stderr and separate
// from the reporter's stdout transcript. -v drops the level to Debug so
// the per-item accept/deny and body-streaming events SPEC_FULL.md
// names become visible; otherwise only Info and above are emitted.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitCodeFor maps a session result to a process exit code per
// spec.md §6-§7: CANCEL_SEND on the sender exits 0, every other error
// exits 1.
func exitCodeFor(err error) int {
	if errors.Is(err, wire.ErrCancelled) {
		return 0
	}
	slog.Error("gorgzorg failed", "error", err)
	return 1
}
