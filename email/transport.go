package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"
)

// ErrNoRecipientsAccepted means the relay turned down every recipient, so
// nothing was sent.
var ErrNoRecipientsAccepted = errors.New("the server accepted none of the recipients")

// Transport hands a composed message to something that can deliver it. Send
// returns the number of recipients that were accepted.
type Transport interface {
	Send(ctx context.Context, from string, rcpts []string, msg []byte) (int, error)
}

// SMTPTransport delivers messages to an SMTP relay. Every Send dials its own
// connection.
type SMTPTransport struct {
	host       string
	port       int
	helo       string
	username   string
	password   string
	encryption Encryption
	timeout    time.Duration
	tlsConfig  *tls.Config
}

// NewSMTPTransport builds an SMTPTransport from a checked Config.
func NewSMTPTransport(c Config) (*SMTPTransport, error) {
	if c.Server == "" || c.SMTPPort == 0 {
		return nil, ErrInvalidSMTPConfig
	}

	return &SMTPTransport{
		host:       c.Server,
		port:       c.SMTPPort,
		helo:       c.HeloName,
		username:   c.User,
		password:   c.Password,
		encryption: c.SMTPEncryption,
		timeout:    c.Timeout,
		tlsConfig: &tls.Config{
			ServerName:         c.Server,
			InsecureSkipVerify: c.SkipCertVerification,
		},
	}, nil
}

// Send implements Transport. Recipients the server rejects are logged and
// skipped; the message still goes to the rest.
func (st *SMTPTransport) Send(ctx context.Context, from string, rcpts []string, msg []byte) (int, error) {
	c, stop, err := st.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer stop()
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return 0, fmt.Errorf("the server refused the sender %v: %w", from, err)
	}

	var accepted int
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			log.Warn().
				Str("recipient", r).
				Err(err).
				Msg("the server rejected a recipient")
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return 0, ErrNoRecipientsAccepted
	}

	w, err := c.Data()
	if err != nil {
		return 0, fmt.Errorf("the server refused the message data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return 0, fmt.Errorf("can't write the message: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("the server did not accept the message: %w", err)
	}

	// The message is queued at this point, so a failed QUIT isn't worth
	// reporting as a failed send.
	if err := c.Quit(); err != nil {
		log.Debug().Err(err).Msg("error closing the SMTP session")
	}

	return accepted, nil
}

// dial connects, negotiates TLS and authenticates. Closing ctx aborts the
// session until the returned stop func is called.
func (st *SMTPTransport) dial(ctx context.Context) (*smtp.Client, func() bool, error) {
	addr := net.JoinHostPort(st.host, strconv.Itoa(st.port))
	d := net.Dialer{Timeout: st.timeout}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("can't connect to the SMTP server at %v: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok && st.timeout > 0 {
		deadline = time.Now().Add(st.timeout)
	}
	if !deadline.IsZero() {
		conn.SetDeadline(deadline)
	}
	// Unblock any pending read or write if the caller gives up
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})

	if st.encryption == EncryptionSSL {
		conn = tls.Client(conn, st.tlsConfig)
	}

	c, err := smtp.NewClient(conn, st.host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("can't start an SMTP session with %v: %w", addr, err)
	}

	if err := st.handshake(c); err != nil {
		stop()
		c.Close()
		return nil, nil, err
	}

	return c, stop, nil
}

// handshake sends EHLO, upgrades to TLS if configured, and logs in.
func (st *SMTPTransport) handshake(c *smtp.Client) error {
	helo := st.helo
	if helo == "" {
		helo = localHostname()
	}
	if err := c.Hello(helo); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if st.encryption == EncryptionTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("the SMTP server does not support STARTTLS")
		}
		if err := c.StartTLS(st.tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if st.username == "" {
		return nil
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return errors.New("the SMTP server does not support authentication")
	}
	if err := c.Auth(sasl.NewPlainClient("", st.username, st.password)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	return nil
}

// SendmailTransport pipes messages into the local MTA's sendmail binary.
type SendmailTransport struct {
	path string
}

// NewSendmailTransport returns a SendmailTransport that runs path.
func NewSendmailTransport(path string) *SendmailTransport {
	return &SendmailTransport{path: path}
}

// Send implements Transport. sendmail either takes the whole message or
// nothing, so on success every recipient counts as accepted.
func (st *SendmailTransport) Send(ctx context.Context, from string, rcpts []string, msg []byte) (int, error) {
	// -i: a lone "." is not the end of the message
	args := append([]string{"-i", "-f", from, "--"}, rcpts...)
	cmd := exec.CommandContext(ctx, st.path, args...)
	cmd.Stdin = bytes.NewReader(msg)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf(
			"sendmail failed: %w: %v",
			err,
			strings.TrimSpace(stderr.String()),
		)
	}

	return len(rcpts), nil
}
