package wire

import (
	"bufio"
	"fmt"
	"io"
)

// ControlToken is one of the fixed ASCII reply tokens the receiver sends
// on the reverse channel.
type ControlToken string

const (
	// TokenOkSend accepts the item whose header the sender just wrote.
	TokenOkSend ControlToken = "Z_OK_SEND"
	// TokenKoSend rejects the item whose header the sender just wrote.
	TokenKoSend ControlToken = "Z_KO_SEND"
	// TokenOk acknowledges that an item was fully materialized: its body
	// written, or its directory created.
	TokenOk ControlToken = "Z_OK"
)

// WriteToken writes a single control reply, unframed, as raw ASCII bytes.
func WriteToken(w io.Writer, tok ControlToken) error {
	if _, err := io.WriteString(w, string(tok)); err != nil {
		return fmt.Errorf("write control token %s: %w", tok, err)
	}
	return nil
}

// ReplyReader reads control tokens off the reverse channel. It treats the
// channel as a plain stream of ASCII tokens rather than special-casing
// any particular coalescing of two replies into one TCP read: it reads
// the common 4-byte prefix every token shares, then only commits to the
// longer "Z_OK_SEND" token when the disambiguating "_SEND" suffix is
// already sitting in its read buffer. This makes the coalesced
// "Z_OK_SENDZ_OK" case fall out naturally as two calls to Next, with no
// dedicated parsing path for it.
type ReplyReader struct {
	r *bufio.Reader
}

// NewReplyReader wraps r for reading control tokens.
func NewReplyReader(r io.Reader) *ReplyReader {
	return &ReplyReader{r: bufio.NewReaderSize(r, 64)}
}

const (
	prefixLen       = len("Z_OK") // shared by every token
	koSuffix        = "_SEND"
	okSendSuffixLen = len(koSuffix)
)

// Next blocks until one complete control token is available and returns
// it. It returns io.EOF (wrapped) if the peer closed the connection
// before a token arrived.
func (rr *ReplyReader) Next() (ControlToken, error) {
	prefix := make([]byte, prefixLen)
	if _, err := io.ReadFull(rr.r, prefix); err != nil {
		return "", fmt.Errorf("read control token prefix: %w", err)
	}

	switch string(prefix) {
	case "Z_KO":
		suffix := make([]byte, okSendSuffixLen)
		if _, err := io.ReadFull(rr.r, suffix); err != nil {
			return "", fmt.Errorf("read Z_KO_SEND suffix: %w", err)
		}
		if string(suffix) != koSuffix {
			return "", fmt.Errorf("malformed control token: Z_KO%s", suffix)
		}
		return TokenKoSend, nil

	case "Z_OK":
		// Only consume the "_SEND" continuation if it is already
		// buffered — i.e. it arrived in the same read as the prefix,
		// which is exactly the coalesced-reply case. If it is not yet
		// buffered, this is a standalone Z_OK and the bytes that
		// follow later belong to the *next* token.
		if rr.r.Buffered() >= okSendSuffixLen {
			peeked, _ := rr.r.Peek(okSendSuffixLen)
			if string(peeked) == koSuffix {
				_, _ = rr.r.Discard(okSendSuffixLen)
				return TokenOkSend, nil
			}
		}
		return TokenOk, nil

	default:
		return "", fmt.Errorf("unrecognized control token prefix %q", prefix)
	}
}
