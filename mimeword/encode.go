package mimeword

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ptgott/pulsemail/strutil"

	"golang.org/x/text/encoding/ianaindex"
)

const (
	// MaxWordLength is the longest an encoded-word may be, delimiters
	// included. See RFC 2047, section 2.
	MaxWordLength = 75

	DefaultCharset   = "UTF-8"
	DefaultLineBreak = "\r\n"

	wordEnd = "?="
)

// DefaultEncoder encodes as UTF-8 and folds with CRLF.
var DefaultEncoder = &Encoder{
	charset:   DefaultCharset,
	lineBreak: DefaultLineBreak,
	utf8:      true,
}

// Encoder holds the charset label and line break to use when folding header
// text. The zero value is not usable; create one with NewEncoder or use
// DefaultEncoder. An Encoder is never modified after creation, so it can be
// shared between goroutines.
type Encoder struct {
	charset   string // upper case
	lineBreak string
	// The charset is UTF-8 under any of its names, so words must end on
	// code point boundaries
	utf8 bool
}

// NewEncoder returns an Encoder for the given charset and line break. The
// charset must be a MIME charset name that can appear inside an encoded-word
// and the line break must be either CRLF or LF. Otherwise the error wraps
// strutil.ErrInvalidArgument.
//
// The charset only labels the output. Encode never transcodes, so callers
// using something other than UTF-8 need to hand it text that is already
// valid in that charset.
func NewEncoder(charset, lineBreak string) (*Encoder, error) {
	if charset == "" {
		return nil, fmt.Errorf("%w: empty charset", strutil.ErrInvalidArgument)
	}

	if strings.ContainsAny(charset, "?= \t\r\n") {
		return nil, fmt.Errorf(
			"%w: charset %q can't appear in an encoded-word",
			strutil.ErrInvalidArgument,
			charset,
		)
	}

	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: unknown charset %q: %v",
			strutil.ErrInvalidArgument,
			charset,
			err,
		)
	}

	if lineBreak != "\r\n" && lineBreak != "\n" {
		return nil, fmt.Errorf(
			"%w: line break must be CRLF or LF, got %q",
			strutil.ErrInvalidArgument,
			lineBreak,
		)
	}

	e := &Encoder{
		charset:   strutil.Upper(charset),
		lineBreak: lineBreak,
	}

	// A nil enc is a registered charset x/text can't decode. Its name
	// still labels the output.
	if enc != nil {
		if n, err := ianaindex.MIME.Name(enc); err == nil && n == DefaultCharset {
			e.utf8 = true
		}
	}

	if e.payloadLength() < 4 {
		return nil, fmt.Errorf(
			"%w: charset %q leaves no room for a payload",
			strutil.ErrInvalidArgument,
			charset,
		)
	}

	return e, nil
}

// Charset returns the upper-cased charset label the Encoder writes.
func (e *Encoder) Charset() string {
	return e.charset
}

// Encode folds s into encoded-words with the DefaultEncoder.
func Encode(s string) string {
	return DefaultEncoder.Encode(s)
}

// wordStart is the opening delimiter of every encoded-word.
func (e *Encoder) wordStart() string {
	return "=?" + e.charset + "?B?"
}

// payloadLength is the longest base64 payload that fits into a single
// encoded-word. Kept to a multiple of 4 so every payload decodes on its own.
func (e *Encoder) payloadLength() int {
	l := MaxWordLength - len(e.wordStart()) - len(wordEnd)
	return l - l%4
}

// Encode returns s unchanged if it is ASCII and shorter than MaxWordLength.
// Otherwise it returns s as a sequence of encoded-words separated by the
// Encoder's line break and a single space, ready to drop into a header.
func (e *Encoder) Encode(s string) string {
	if !strutil.IsMultibyte(s) && strutil.Length(s) < MaxWordLength {
		return s
	}

	start := e.wordStart()
	sep := wordEnd + e.lineBreak + " " + start
	payload := e.payloadLength()

	var parts []string
	if e.utf8 {
		parts = splitUTF8(s, payload*3/4)
	} else {
		parts = splitFixed(base64.StdEncoding.EncodeToString([]byte(s)), payload)
	}

	return start + strings.Join(parts, sep) + wordEnd
}

// splitUTF8 cuts s into runs of at most maxBytes bytes without splitting
// a code point and returns the base64 form of each run.
func splitUTF8(s string, maxBytes int) []string {
	parts := make([]string, 0, len(s)/maxBytes+1)

	for len(s) > maxBytes {
		i := maxBytes
		for i > 0 && isContinuation(s[i]) {
			i--
		}
		// Nothing but continuation bytes: malformed input, so cut at the
		// byte limit rather than emit an empty word.
		if i == 0 {
			i = maxBytes
		}

		parts = append(parts, base64.StdEncoding.EncodeToString([]byte(s[:i])))
		s = s[i:]
	}

	return append(parts, base64.StdEncoding.EncodeToString([]byte(s)))
}

// splitFixed hard-wraps the already encoded b64 every n characters.
func splitFixed(b64 string, n int) []string {
	parts := make([]string, 0, len(b64)/n+1)
	for len(b64) > n {
		parts = append(parts, b64[:n])
		b64 = b64[n:]
	}
	return append(parts, b64)
}

// isContinuation reports whether b is a UTF-8 continuation byte (10xxxxxx).
func isContinuation(b byte) bool {
	return b&0xC0 == 0x80
}
