package email

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateID returns a Message-ID of the form
// <utctime.random.pulsemail@host>. The random part comes from a UUID rather
// than the process ID, which some hosts hide.
func generateID(t time.Time, host string) string {
	if host == "" {
		host = localHostname()
	}
	return fmt.Sprintf(
		"<%s.%s.pulsemail@%s>",
		t.UTC().Format("20060102150405"),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
		host,
	)
}

// localHostname falls back to "localhost" when the OS won't tell us.
func localHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
