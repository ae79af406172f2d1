package smtptest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Part is a leaf MIME part of a received email, with its transfer encoding
// already undone.
type Part struct {
	ContentType string
	Filename    string
	Content     []byte
}

// ParseEmail reads a raw email body as received by the test server and
// returns its header and flattened leaf parts.
func ParseEmail(raw string) (mail.Header, []Part, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("can't parse the email: %v", err)
	}

	parts, err := readParts(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body)
	if err != nil {
		return nil, nil, err
	}

	return m.Header, parts, nil
}

func readParts(contentType, cte string, r io.Reader) ([]Part, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("can't parse the content type %q: %v", contentType, err)
	}

	if !strings.HasPrefix(mt, "multipart/") {
		b, err := decodeBody(cte, r)
		if err != nil {
			return nil, err
		}
		return []Part{{ContentType: contentType, Content: b}}, nil
	}

	var parts []Part
	mr := multipart.NewReader(r, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		// multipart.Reader undoes quoted-printable on its own and drops the
		// header, so only base64 is left for decodeBody
		sub, err := readParts(p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), p)
		if err != nil {
			return nil, err
		}
		if fn := p.FileName(); fn != "" && len(sub) == 1 {
			sub[0].Filename = fn
		}
		parts = append(parts, sub...)
	}

	return parts, nil
}

func decodeBody(cte string, r io.Reader) ([]byte, error) {
	var b bytes.Buffer
	var err error
	switch strings.ToLower(cte) {
	case "base64":
		_, err = b.ReadFrom(base64.NewDecoder(base64.StdEncoding, r))
	case "quoted-printable":
		_, err = b.ReadFrom(quotedprintable.NewReader(r))
	default:
		_, err = b.ReadFrom(r)
	}
	return b.Bytes(), err
}
