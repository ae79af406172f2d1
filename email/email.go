package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoRecipients means a message had nobody to go to.
var ErrNoRecipients = errors.New("must supply at least one recipient")

// Message is a single transactional email. Only HTML, Subject and To are
// required. The rest fall back to the site settings in Config.
type Message struct {
	// HTML body. A text/plain alternative is derived from it.
	HTML    string
	Subject string
	To      []Recipient
	// Defaults to Config.SiteEmail
	From string
	// Defaults to Config.SiteName
	FromName string
	// Paths of files to attach
	Attachments []string
	Bcc         []string
	// Defaults to From
	ReplyTo     string
	ReplyToName string
}

// Sender sends Messages with the transport picked by its Config. A Sender
// has no mutable state, so one can serve concurrent callers.
type Sender struct {
	config    Config
	transport Transport
}

// NewSender validates c and returns a Sender for it. Returns an error on
// validation failure.
func NewSender(c Config) (*Sender, error) {
	cc, err := c.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}

	s := &Sender{config: cc}

	switch cc.Method {
	case MethodSMTP:
		t, err := NewSMTPTransport(cc)
		if err != nil {
			return nil, err
		}
		s.transport = t
	case MethodSendmail:
		s.transport = NewSendmailTransport(cc.SendmailPath)
	}

	return s, nil
}

// NewSenderWithTransport is like NewSender but delivers through t no
// matter which method c names, unless sending is disabled.
func NewSenderWithTransport(c Config, t Transport) (*Sender, error) {
	s, err := NewSender(c)
	if err != nil {
		return nil, err
	}
	if s.config.Method != MethodDisabled {
		s.transport = t
	}
	return s, nil
}

// Config returns the checked configuration the Sender uses.
func (s *Sender) Config() Config {
	return s.config
}

// Send delivers m and returns the number of recipients the transport
// accepted. When sending is disabled it returns right away without error.
func (s *Sender) Send(ctx context.Context, m Message) (int, error) {
	if s.config.Method == MethodDisabled {
		log.Debug().Msg("sending is disabled, dropping the message")
		return 0, nil
	}

	msg, e, err := s.build(m)
	if err != nil {
		return 0, err
	}

	log.Debug().
		Str("method", s.config.Method.String()).
		Str("messageID", e.messageID).
		Int("recipients", len(e.recipients())).
		Msg("attempting to send an email")

	n, err := s.transport.Send(ctx, e.from.Address, e.recipients(), msg)
	if err != nil {
		return n, fmt.Errorf("can't send the email: %w", err)
	}

	log.Info().
		Str("messageID", e.messageID).
		Int("accepted", n).
		Msg("sent an email")

	return n, nil
}

// Compose applies the defaults from the Sender's Config to m and renders it
// exactly as Send would hand it to the transport. Useful for previewing a
// message.
func (s *Sender) Compose(m Message) ([]byte, error) {
	msg, _, err := s.build(m)
	return msg, err
}

func (s *Sender) build(m Message) ([]byte, *envelope, error) {
	e, err := s.resolve(m)
	if err != nil {
		return nil, nil, err
	}

	msg, err := compose(e, s.config.MaxAttachmentSize)
	if err != nil {
		return nil, nil, err
	}

	return msg, e, nil
}

// resolve builds the envelope for m: defaults, checked punycode addresses
// and display names.
func (s *Sender) resolve(m Message) (*envelope, error) {
	e := &envelope{
		subject:     m.Subject,
		html:        m.HTML,
		attachments: m.Attachments,
		date:        time.Now(),
	}

	from := strings.TrimSpace(m.From)
	if from == "" {
		from = s.config.SiteEmail
	}
	fromName := m.FromName
	if fromName == "" {
		fromName = s.config.SiteName
	}
	fa, err := normalizeAddress(from)
	if err != nil {
		return nil, err
	}
	e.from = Recipient{
		Address: fa,
		Name:    displayName(fromName, from),
	}

	for _, r := range m.To {
		a := strings.TrimSpace(r.Address)
		if a == "" {
			continue
		}
		na, err := normalizeAddress(a)
		if err != nil {
			return nil, err
		}
		e.to = append(e.to, Recipient{
			Address: na,
			Name:    displayName(r.Name, a),
		})
	}
	if len(e.to) == 0 {
		return nil, ErrNoRecipients
	}

	for _, b := range m.Bcc {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		nb, err := normalizeAddress(b)
		if err != nil {
			return nil, err
		}
		e.bcc = append(e.bcc, nb)
	}

	replyTo := strings.TrimSpace(m.ReplyTo)
	if replyTo == "" {
		replyTo = from
	}
	ra, err := normalizeAddress(replyTo)
	if err != nil {
		return nil, err
	}
	e.replyTo = Recipient{
		Address: ra,
		Name:    displayName(m.ReplyToName, replyTo),
	}

	e.messageID = generateID(e.date, s.config.HeloName)

	return e, nil
}
