package e2e

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/ptgott/pulsemail/smtptest"
)

// testEnvironment manages all dependencies required to simulate a "real"
// environment and run the e2e tests. Callers should create this via
// startTestEnvironment.
type testEnvironment struct {
	SMTPServer *smtptest.InProcessServer
	// Holds the config file, the HTML body and any attachments
	dir string
	// Unique per environment so tests can tell their messages apart
	id string
}

// startTestEnvironment starts an SMTP server that stops when the test ends.
func startTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	return &testEnvironment{
		SMTPServer: smtptest.StartServer(t),
		dir:        t.TempDir(),
		id:         uuid.NewString(),
	}
}

// configOptions points the application at the environment's SMTP server
func (te *testEnvironment) configOptions(t *testing.T) appConfigOptions {
	t.Helper()

	h, p, err := net.SplitHostPort(te.SMTPServer.Address())
	if err != nil {
		t.Fatalf("can't parse the SMTP server address: %v", err)
	}

	return appConfigOptions{
		SMTPHost:   h,
		SMTPPort:   p,
		Encryption: "tls",
		SiteName:   "Boutique Élégance",
	}
}

// writeFile creates a file in the environment's directory and returns its
// path.
func (te *testEnvironment) writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(te.dir, name)
	if err := os.WriteFile(p, content, 0600); err != nil {
		t.Fatalf("can't write %v: %v", name, err)
	}
	return p
}

// receivedEmails returns the payloads s received after since, in Unix epoch
// nanoseconds.
func receivedEmails(t *testing.T, s smtptest.Server, since int64) []string {
	t.Helper()

	ems, err := s.RetrieveEmails(since)
	if err != nil {
		t.Fatalf("can't retrieve email from the test SMTP server: %v", err)
	}
	return ems
}
