package e2e

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"testing"
	"time"

	"github.com/ptgott/pulsemail/dispatch"
	"github.com/ptgott/pulsemail/mimeword"
	"github.com/ptgott/pulsemail/smtptest"
	"github.com/ptgott/pulsemail/userconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderHTML = `<html><head><style>p { color: red }</style></head>
<body><h1>Merci !</h1><p>Votre commande %v a été expédiée.</p></body></html>`

// Send an order confirmation with a long French subject and recipient names
// through STARTTLS and AUTH, then check what the server received.
func TestOrderConfirmation(t *testing.T) {
	testenv := startTestEnvironment(t)

	config, err := loadUserConfig(testenv.dir, testenv.configOptions(t), nil)
	require.NoError(t, err)

	subject := "Confirmation de votre commande : nous préparons vos articles préférés avec le plus grand soin " + testenv.id
	body := testenv.writeFile(t, "body.html", []byte(fmt.Sprintf(orderHTML, testenv.id)))
	invoice := testenv.writeFile(t, "facture.txt", []byte("Total : 42,00 €\n"))

	n, err := dispatch.Run(context.Background(), dispatch.Options{
		To:          []string{"amelie@example.com", "jerome@bücher.example"},
		ToNames:     []string{"Amélie Poulain", "Jérôme"},
		Bcc:         []string{"archive@example.com"},
		Subject:     subject,
		HTMLPath:    body,
		Attachments: []string{invoice},
	}, config)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs := testenv.SMTPServer.RetrieveMessages(0)
	require.Len(t, msgs, 1)
	m := msgs[0]

	assert.Equal(t, "shop@example.com", m.From)
	assert.Equal(t, []string{
		"amelie@example.com",
		"jerome@xn--bcher-kva.example",
		"archive@example.com",
	}, m.Recipients)

	h, parts, err := smtptest.ParseEmail(m.Body)
	require.NoError(t, err)

	var dec mime.WordDecoder
	s, err := dec.DecodeHeader(h.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, subject, s)

	from, err := h.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Boutique Élégance", from[0].Name)

	to, err := h.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "Amélie Poulain", to[0].Name)
	assert.Equal(t, "Jérôme", to[1].Name)
	assert.Empty(t, h.Get("Bcc"))

	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].ContentType, "text/plain")
	assert.Contains(t, string(parts[0].Content), "a été expédiée")
	assert.NotContains(t, string(parts[0].Content), "color: red")
	assert.Contains(t, parts[1].ContentType, "text/html")
	assert.Equal(t, "facture.txt", parts[2].Filename)
	assert.Equal(t, "Total : 42,00 €\n", string(parts[2].Content))

	// Every line of the raw Subject header stays within the encoded-word
	// limit plus the folding space.
	raw := m.Body[:strings.Index(m.Body, "\r\n\r\n")]
	i := strings.Index(raw, "Subject: ")
	require.GreaterOrEqual(t, i, 0)
	for j, l := range strings.Split(raw[i+len("Subject: "):], "\r\n") {
		if j > 0 && !strings.HasPrefix(l, " ") {
			break
		}
		assert.LessOrEqual(t, len(strings.TrimPrefix(l, " ")), mimeword.MaxWordLength)
	}
}

// Environment variables take precedence over the config file.
func TestEnvironmentOverrides(t *testing.T) {
	testenv := startTestEnvironment(t)

	opts := testenv.configOptions(t)
	// The file points at a port nobody listens on
	realPort := opts.SMTPPort
	opts.SMTPPort = "1"

	config, err := loadUserConfig(testenv.dir, opts, map[string]string{
		userconfig.EnvSMTPPort:  realPort,
		userconfig.EnvSiteEmail: "noreply@example.com",
		userconfig.EnvSiteName:  "Example",
	})
	require.NoError(t, err)

	body := testenv.writeFile(t, "body.html", []byte("<p>hi</p>"))
	start := time.Now().UnixNano()

	n, err := dispatch.Run(context.Background(), dispatch.Options{
		To:       []string{"someone@example.com"},
		Subject:  "Hi " + testenv.id,
		HTMLPath: body,
	}, config)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := testenv.SMTPServer.RetrieveMessages(start)
	require.Len(t, msgs, 1)
	assert.Equal(t, "noreply@example.com", msgs[0].From)

	ems := receivedEmails(t, testenv.SMTPServer, start)
	require.Len(t, ems, 1)
	assert.Contains(t, ems[0], "Subject: Hi "+testenv.id)
}

// A rejected recipient is skipped rather than failing the whole message.
func TestRejectedRecipient(t *testing.T) {
	testenv := startTestEnvironment(t)
	testenv.SMTPServer.RejectRecipient("bounced@example.com")

	config, err := loadUserConfig(testenv.dir, testenv.configOptions(t), nil)
	require.NoError(t, err)

	body := testenv.writeFile(t, "body.html", []byte("<p>hi</p>"))

	n, err := dispatch.Run(context.Background(), dispatch.Options{
		To:       []string{"bounced@example.com", "kept@example.com"},
		Subject:  "Hello",
		HTMLPath: body,
	}, config)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := testenv.SMTPServer.RetrieveMessages(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"kept@example.com"}, msgs[0].Recipients)
}

// A dry run prints the message and never reaches the server.
func TestDryRun(t *testing.T) {
	testenv := startTestEnvironment(t)

	config, err := loadUserConfig(testenv.dir, testenv.configOptions(t), nil)
	require.NoError(t, err)

	body := testenv.writeFile(t, "body.html", []byte("<p>hi</p>"))
	var out bytes.Buffer

	_, err = dispatch.Run(context.Background(), dispatch.Options{
		To:       []string{"someone@example.com"},
		Subject:  "Hello " + testenv.id,
		HTMLPath: body,
		DryRun:   true,
		Output:   &out,
	}, config)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Subject: Hello "+testenv.id)

	assert.Empty(t, receivedEmails(t, testenv.SMTPServer, 0))
}
