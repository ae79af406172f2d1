package smtptest

// Server is an SMTP server that tests can send mail to. It should be able
// to return the payloads of messages sent to it. The server is meant to
// start during a test and stop right after.
type Server interface {
	// Start serves connections until Close is called. Blocking.
	Start() error

	// Close stops the server. While this is designed not to return an
	// error so it's easier to use with defer or t.Cleanup, implementations
	// should log failures to close.
	Close()

	// RetrieveEmails returns the payloads of all email messages sent to the
	// server after time t in Unix epoch nanoseconds.
	RetrieveEmails(t int64) ([]string, error)

	// Address returns the host:port of the server.
	Address() string
}

var _ Server = (*InProcessServer)(nil)
