package smtptest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// Message is an email as the test server received it, envelope included.
type Message struct {
	created    time.Time
	From       string
	Recipients []string
	Body       string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
}

// Login implements smtp.Backend. Any username/password is fine, since we
// don't want to couple this with specific test configurations.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username != "" && password != "" {
		return &session{store: be.InMemoryEmailStore}, nil
	}
	return nil, errors.New("no username or password provided")
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// session implements smtp.Session, collecting the envelope of one
// transaction until DATA hands it to the store.
type session struct {
	store *InMemoryEmailStore
	from  string
	rcpts []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session. Refuses addresses passed to
// RejectRecipient.
func (s *session) Rcpt(to string) error {
	if s.store.isRejected(to) {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "no such user",
		}
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 100 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	s.store.saveEmail(Message{
		From:       s.from,
		Recipients: append([]string(nil), s.rcpts...),
		Body:       string(buf),
	})
	return nil
}

// InMemoryEmailStore retains received emails in memory for comparison
// against a test's expected output. Designed to be goroutine safe since we
// don't know how many goroutines will be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
	rejected map[string]struct{}
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener net.Listener
}

// NewInProcessServer creates an InProcessServer, including configuring
// its SMTP server to store incoming messages in memory. Must provide
// the paths to the key and cert used for TLS. The server listens on a free
// loopback port right away, so clients can connect as soon as Start runs.
func NewInProcessServer(keypath string, certpath string) *InProcessServer {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
		rejected: map[string]struct{}{},
	}

	srv := smtp.NewServer(&Backend{
		is,
	})

	srv.Domain = "localhost"
	srv.AllowInsecureAuth = false // AUTH only after STARTTLS
	srv.AuthDisabled = false      // need AUTH here
	// Strict enforces <address> syntax in MAIL and RCPT commands
	srv.Strict = true
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	cert, err := tls.LoadX509KeyPair(certpath, keypath)

	// No way to carry on without a cert, so we panic. We're in a test
	// suite, so this should be fine.
	if err != nil {
		panic(err)
	}

	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	srv.Addr = l.Addr().String()

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.created = time.Now()
	es.messages = append(es.messages, m)
}

// RejectRecipient makes the server answer RCPT TO:<addr> with a 550.
func (es *InMemoryEmailStore) RejectRecipient(addr string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.rejected[addr] = struct{}{}
}

func (es *InMemoryEmailStore) isRejected(addr string) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	_, ok := es.rejected[addr]
	return ok
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ServeTLS--the client should upgrade the connection to TLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// received after epoch nanoseconds t.
// Satisfies smtptest.Server but isn't expected to return an error.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	ms := es.RetrieveMessages(t)
	r := make([]string, len(ms))
	for i, m := range ms {
		r[i] = m.Body
	}
	return r, nil
}

// RetrieveMessages is like RetrieveEmails but includes the envelope.
func (es *InMemoryEmailStore) RetrieveMessages(t int64) []Message {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]Message, 0, len(es.messages))
	for _, m := range es.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m)
		}
	}
	return r
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}
