package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ptgott/pulsemail/html"
	"github.com/ptgott/pulsemail/mimeword"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
)

const crlf = "\r\n"

// ErrAttachmentTooLarge is returned when an attachment exceeds the
// configured maximum size.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// envelope is a fully resolved message: addresses punycoded, display names
// cleaned up and defaults applied. Names are still raw text here.
type envelope struct {
	from        Recipient
	replyTo     Recipient
	to          []Recipient
	bcc         []string
	subject     string
	html        string
	attachments []string
	messageID   string
	date        time.Time
}

// recipients returns every envelope recipient, To then BCC.
func (e *envelope) recipients() []string {
	r := make([]string, 0, len(e.to)+len(e.bcc))
	for _, t := range e.to {
		r = append(r, t.Address)
	}
	return append(r, e.bcc...)
}

// compose renders e as an RFC 5322 message with CRLF line endings. BCC
// addresses never appear in the output.
func compose(e *envelope, maxAttachmentSize int64) ([]byte, error) {
	var body bytes.Buffer
	top := multipart.NewWriter(&body)

	var contentType string
	if len(e.attachments) == 0 {
		contentType = "multipart/alternative; boundary=" + top.Boundary()
		if err := writeAlternatives(top, e.html); err != nil {
			return nil, err
		}
	} else {
		contentType = "multipart/mixed; boundary=" + top.Boundary()

		var alt bytes.Buffer
		aw := multipart.NewWriter(&alt)
		if err := writeAlternatives(aw, e.html); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "multipart/alternative; boundary="+aw.Boundary())
		pw, err := top.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write(alt.Bytes()); err != nil {
			return nil, err
		}

		for _, p := range e.attachments {
			if err := writeAttachment(top, p, maxAttachmentSize); err != nil {
				return nil, err
			}
		}
	}

	if err := top.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	writeHeader(&msg, "Date", e.date.Format(time.RFC1123Z))
	writeHeader(&msg, "From", formatAddress(e.from.Name, e.from.Address))
	if e.replyTo.Address != "" {
		writeHeader(&msg, "Reply-To", formatAddress(e.replyTo.Name, e.replyTo.Address))
	}

	to := make([]string, len(e.to))
	for i, r := range e.to {
		to[i] = formatAddress(r.Name, r.Address)
	}
	writeHeader(&msg, "To", strings.Join(to, ","+crlf+" "))

	writeHeader(&msg, "Subject", mimeword.Encode(stripLineBreaks(e.subject)))
	writeHeader(&msg, "Message-ID", e.messageID)
	writeHeader(&msg, "MIME-Version", "1.0")
	writeHeader(&msg, "Content-Type", contentType)
	msg.WriteString(crlf)
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func writeHeader(w *bytes.Buffer, key, value string) {
	w.WriteString(key + ": " + value + crlf)
}

// writeAlternatives writes the text/plain and text/html versions of body,
// in that order so clients prefer the HTML.
func writeAlternatives(w *multipart.Writer, body string) error {
	parts := []struct {
		contentType string
		content     string
	}{
		{contentType: "text/plain; charset=utf-8", content: html.PlainText(body)},
		{contentType: "text/html; charset=utf-8", content: body},
	}

	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.contentType)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		qw := quotedprintable.NewWriter(pw)
		if _, err := io.WriteString(qw, p.content); err != nil {
			return err
		}
		if err := qw.Close(); err != nil {
			return err
		}
	}

	return nil
}

// writeAttachment adds the file at path as a base64-encoded part.
func writeAttachment(w *multipart.Writer, path string, maxSize int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("can't read the attachment: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("the attachment %v is a directory", path)
	}
	if maxSize > 0 && fi.Size() > maxSize {
		return fmt.Errorf(
			"%w: %v is %v, the limit is %v",
			ErrAttachmentTooLarge,
			path,
			units.HumanSize(float64(fi.Size())),
			units.HumanSize(float64(maxSize)),
		)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read the attachment: %w", err)
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mimetype.Detect(b).String())
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType(
		"attachment",
		map[string]string{"filename": filepath.Base(path)},
	))

	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	// RFC 2045 limits encoded lines to 76 characters
	enc := base64.StdEncoding.EncodeToString(b)
	for len(enc) > 76 {
		if _, err := io.WriteString(pw, enc[:76]+crlf); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err = io.WriteString(pw, enc+crlf)
	return err
}
