// Package dispatch performs one send cycle from command-line options: it
// reads the HTML body, builds an email.Message and sends or prints it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ptgott/pulsemail/email"
	"github.com/ptgott/pulsemail/userconfig"

	"github.com/rs/zerolog/log"
)

// ErrNoOutput means a dry run had nowhere to write the message.
var ErrNoOutput = errors.New("a dry run needs an output writer")

// Options describes a single message to send.
type Options struct {
	To []string
	// One name applies to every recipient. Otherwise names pair with To
	// by position.
	ToNames     []string
	Bcc         []string
	Subject     string
	HTMLPath    string
	From        string
	FromName    string
	ReplyTo     string
	ReplyToName string
	Attachments []string
	// Write the composed message to Output instead of sending it
	DryRun bool
	Output io.Writer
	// Overrides the transport chosen by the mail config. Used for testing.
	Transport email.Transport
}

// Run sends the message that opts describes using the mail settings in
// meta. It returns the number of recipients the transport accepted. For a
// dry run, the count is the number of recipients the message would go to.
func Run(ctx context.Context, opts Options, meta *userconfig.Meta) (int, error) {
	if opts.HTMLPath == "" {
		return 0, errors.New("must supply a path to an HTML body")
	}

	b, err := os.ReadFile(opts.HTMLPath)
	if err != nil {
		return 0, fmt.Errorf("can't read the email body: %w", err)
	}

	m := email.Message{
		HTML:        string(b),
		Subject:     opts.Subject,
		To:          email.NewRecipients(opts.To, opts.ToNames),
		From:        opts.From,
		FromName:    opts.FromName,
		Attachments: opts.Attachments,
		Bcc:         opts.Bcc,
		ReplyTo:     opts.ReplyTo,
		ReplyToName: opts.ReplyToName,
	}

	var s *email.Sender
	if opts.Transport != nil {
		s, err = email.NewSenderWithTransport(meta.Mail, opts.Transport)
	} else {
		s, err = email.NewSender(meta.Mail)
	}
	if err != nil {
		return 0, err
	}

	if opts.DryRun {
		if opts.Output == nil {
			return 0, ErrNoOutput
		}
		msg, err := s.Compose(m)
		if err != nil {
			return 0, err
		}
		if _, err := opts.Output.Write(msg); err != nil {
			return 0, fmt.Errorf("can't write the email: %w", err)
		}
		log.Info().
			Int("bytes", len(msg)).
			Msg("wrote the email instead of sending it")
		return countRecipients(m), nil
	}

	return s.Send(ctx, m)
}

func countRecipients(m email.Message) int {
	var n int
	for _, r := range m.To {
		if strings.TrimSpace(r.Address) != "" {
			n++
		}
	}
	for _, a := range m.Bcc {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}

// SplitList turns a comma-separated flag value into its trimmed, non-blank
// elements.
func SplitList(s string) []string {
	var l []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			l = append(l, p)
		}
	}
	return l
}
