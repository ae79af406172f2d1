package smtptest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmail(t *testing.T) {
	raw := "Subject: Hello\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=outer\r\n" +
		"\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/alternative; boundary=inner\r\n" +
		"\r\n" +
		"--inner\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9\r\n" +
		"--inner\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		"<p>caf\xc3\xa9</p>\r\n" +
		"--inner--\r\n" +
		"--outer\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVs\r\n" +
		"bG8=\r\n" +
		"--outer--\r\n"

	h, parts, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "Hello", h.Get("Subject"))

	require.Len(t, parts, 3)
	assert.Equal(t, "café", string(parts[0].Content))
	assert.Equal(t, "<p>café</p>", string(parts[1].Content))
	assert.Equal(t, "notes.txt", parts[2].Filename)
	assert.Equal(t, "hello", string(parts[2].Content))
}

func TestParseEmailSinglePart(t *testing.T) {
	_, parts, err := ParseEmail("Content-Type: text/plain\r\n\r\nhi")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "hi", string(parts[0].Content))
}

func TestParseEmailBadContentType(t *testing.T) {
	_, _, err := ParseEmail("Content-Type: ;;;\r\n\r\nhi")
	assert.Error(t, err)
}
