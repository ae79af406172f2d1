package email

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ptgott/pulsemail/mimeword"

	"golang.org/x/net/idna"
)

// ErrInvalidAddress means an address isn't a single bare addr-spec.
var ErrInvalidAddress = errors.New("invalid email address")

// Recipient is an address plus an optional display name.
type Recipient struct {
	Address string
	Name    string
}

// NewRecipients pairs addresses with display names. A single name applies
// to every address. Otherwise names are matched by position, and addresses
// without a matching name get none.
func NewRecipients(addrs []string, names []string) []Recipient {
	r := make([]Recipient, len(addrs))
	for i, a := range addrs {
		r[i].Address = a
		switch {
		case len(names) == 1:
			r[i].Name = names[0]
		case i < len(names):
			r[i].Name = names[i]
		}
	}
	return r
}

// ToPunycode converts the domain of addr to its ASCII form, e.g.,
// "user@bücher.example" becomes "user@xn--bcher-kva.example". Anything that
// doesn't look like local@domain, or whose domain IDNA rejects, is returned
// as is and left for the transport to refuse.
func ToPunycode(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return addr
	}

	d, err := idna.Lookup.ToASCII(addr[at+1:])
	if err != nil {
		return addr
	}

	return addr[:at+1] + d
}

// normalizeAddress converts the domain of addr to punycode and makes sure
// the result is one bare address that can't leave its header.
func normalizeAddress(addr string) (string, error) {
	a := ToPunycode(addr)
	if strings.ContainsAny(a, "\r\n<>") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	p, err := mail.ParseAddress(a)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if p.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	return p.Address, nil
}

// stripLineBreaks keeps user-provided header text from starting a new
// header line.
func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// displayName prepares name for an address header. It returns "" when the
// name adds nothing to addr.
func displayName(name, addr string) string {
	name = strings.TrimSpace(stripLineBreaks(name))
	if name == "" || name == addr {
		return ""
	}
	return name
}

// formatAddress renders an address header entry. Names that need encoding
// go out as folded encoded-words; short ASCII names are quoted when they
// contain characters that are special in addresses.
func formatAddress(name, addr string) string {
	if name == "" {
		return "<" + addr + ">"
	}

	enc := mimeword.Encode(name)
	if enc != name {
		return enc + " <" + addr + ">"
	}

	return quoteName(name) + " <" + addr + ">"
}

// quoteName returns name as an RFC 5322 phrase, quoting it only when it
// holds something other than atoms and spaces.
func quoteName(name string) string {
	if !strings.ContainsAny(name, `()<>[]:;@\,."`) {
		return name
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' || name[i] == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(name[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
