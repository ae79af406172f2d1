package email

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ptgott/pulsemail/strutil"

	"github.com/alecthomas/units"
)

// Method selects how messages leave the application. The values match the
// numbers older deployments used in their configuration.
type Method int

const (
	// MethodSendmail hands the message to the local MTA.
	MethodSendmail Method = 1
	// MethodSMTP sends the message to an SMTP relay.
	MethodSMTP Method = 2
	// MethodDisabled turns sending into a no-op.
	MethodDisabled Method = 3
)

func (m Method) String() string {
	switch m {
	case MethodSendmail:
		return "sendmail"
	case MethodSMTP:
		return "smtp"
	case MethodDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod accepts either the name or the number of a Method. An empty
// string means sendmail.
func ParseMethod(s string) (Method, error) {
	switch strutil.Lower(s) {
	case "", "1", "sendmail", "mail":
		return MethodSendmail, nil
	case "2", "smtp":
		return MethodSMTP, nil
	case "3", "disabled", "disable", "off":
		return MethodDisabled, nil
	}
	return 0, fmt.Errorf("unknown mail method %q", s)
}

// Encryption is the TLS mode used for SMTP connections.
type Encryption string

const (
	// EncryptionNone never negotiates TLS.
	EncryptionNone Encryption = "off"
	// EncryptionTLS upgrades a plain connection with STARTTLS.
	EncryptionTLS Encryption = "tls"
	// EncryptionSSL speaks TLS from the first byte.
	EncryptionSSL Encryption = "ssl"
)

// ParseEncryption maps a user-provided encryption setting to an Encryption.
// Blank means no encryption.
func ParseEncryption(s string) (Encryption, error) {
	switch strutil.Lower(s) {
	case "", "off", "none", "false":
		return EncryptionNone, nil
	case "tls", "starttls":
		return EncryptionTLS, nil
	case "ssl":
		return EncryptionSSL, nil
	}
	return "", fmt.Errorf("unknown SMTP encryption %q", s)
}

// defaultPort returns the usual submission port for e.
func (e Encryption) defaultPort() int {
	switch e {
	case EncryptionSSL:
		return 465
	case EncryptionTLS:
		return 587
	default:
		return 25
	}
}

const (
	defaultTimeout           = 30 * time.Second
	defaultMaxAttachmentSize = 10 * int64(units.MiB)
	defaultSendmailPath      = "/usr/sbin/sendmail"
)

// ErrInvalidSMTPConfig means the SMTP method was chosen without somewhere
// to send the mail.
var ErrInvalidSMTPConfig = errors.New("invalid SMTP server or SMTP port")

// Config represents mail options provided by the user. Not meant to be used
// directly for sending email without CheckAndSetDefaults.
type Config struct {
	Method         Method
	Server         string
	User           string
	Password       string
	SMTPEncryption Encryption
	SMTPPort       int
	// Used as the From address when a message doesn't name one
	SiteEmail string
	// Used as the From display name when a message doesn't name one
	SiteName string
	// Only meant for testing against relays with self-signed certs
	SkipCertVerification bool
	SendmailPath         string
	// Name announced in EHLO and used as the Message-ID domain. Defaults
	// to the host name.
	HeloName          string
	Timeout           time.Duration
	MaxAttachmentSize int64
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Only parsing
// errors are returned here, since required settings may still come from the
// environment. CheckAndSetDefaults performs validation.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the email config: %v", err)
	}

	m, err := ParseMethod(v["method"])
	if err != nil {
		return err
	}
	c.Method = m

	c.Server = v["server"]
	c.User = v["user"]
	c.Password = v["password"]
	c.SiteEmail = v["siteEmail"]
	c.SiteName = v["siteName"]
	c.SendmailPath = v["sendmailPath"]
	c.HeloName = v["heloName"]

	e, err := ParseEncryption(v["smtpEncryption"])
	if err != nil {
		return err
	}
	c.SMTPEncryption = e

	if p, ok := v["smtpPort"]; ok && p != "" && p != "default" {
		pn, err := ParsePort(p)
		if err != nil {
			return err
		}
		c.SMTPPort = pn
	}

	if s, ok := v["skipCertVerification"]; ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("can't parse skipCertVerification as a boolean: %v", err)
		}
		c.SkipCertVerification = b
	}

	if t, ok := v["timeout"]; ok {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("can't parse the timeout as a duration: %v", err)
		}
		c.Timeout = d
	}

	if s, ok := v["maxAttachmentSize"]; ok {
		b, err := units.ParseBase2Bytes(s)
		if err != nil {
			return fmt.Errorf("can't parse maxAttachmentSize as a size: %v", err)
		}
		c.MaxAttachmentSize = int64(b)
	}

	return nil
}

// ParsePort parses an SMTP port number.
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("can't parse the SMTP port %q as an integer", s)
	}
	if p <= 0 || p > 65535 {
		return 0, fmt.Errorf("SMTP port %v is out of range", p)
	}
	return p, nil
}

// CheckAndSetDefaults validates c and either returns a copy of c with
// default settings applied or returns an error due to an invalid
// configuration
func (c *Config) CheckAndSetDefaults() (Config, error) {
	n := *c

	if n.Method == 0 {
		n.Method = MethodSendmail
	}
	if n.SMTPEncryption == "" {
		n.SMTPEncryption = EncryptionNone
	}
	if n.Timeout == 0 {
		n.Timeout = defaultTimeout
	}
	if n.Timeout < 0 {
		return Config{}, errors.New("the timeout can't be negative")
	}
	if n.MaxAttachmentSize == 0 {
		n.MaxAttachmentSize = defaultMaxAttachmentSize
	}
	if n.MaxAttachmentSize < 0 {
		return Config{}, errors.New("the maximum attachment size can't be negative")
	}

	switch n.Method {
	case MethodDisabled:
		// Nothing else matters
		return n, nil
	case MethodSMTP:
		if n.SMTPPort == 0 {
			n.SMTPPort = n.SMTPEncryption.defaultPort()
		}
		if n.Server == "" {
			return Config{}, ErrInvalidSMTPConfig
		}
		if n.Password != "" && n.User == "" {
			return Config{}, errors.New("must supply a username along with the password")
		}
	case MethodSendmail:
		if n.SendmailPath == "" {
			n.SendmailPath = defaultSendmailPath
		}
	default:
		return Config{}, fmt.Errorf("unknown mail method %v", n.Method)
	}

	if n.SiteEmail == "" {
		return Config{}, errors.New("must supply a site email to send from")
	}

	return n, nil
}
