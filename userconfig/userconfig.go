package userconfig

import (
	"errors"
	"fmt"
	"io"

	"github.com/ptgott/pulsemail/email"
	"github.com/ptgott/pulsemail/strutil"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"
)

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Mail email.Config `yaml:"mail"`
	Log  Logging      `yaml:"log"`
}

// Logging contains config options for the application's logs
type Logging struct {
	LevelName string `yaml:"level"`
}

// Level returns the zerolog level named in the config. Blank means info.
func (l Logging) Level() (zerolog.Level, error) {
	switch strutil.Lower(l.LevelName) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", l.LevelName)
}

// Environment variables that override the config file. The names are the
// ones earlier deployments defined as constants.
const (
	EnvSiteEmail      = "PULSE_SITE_EMAIL"
	EnvMailMethod     = "PULSE_MAIL_METHOD"
	EnvMailServer     = "PULSE_MAIL_SERVER"
	EnvMailUser       = "PULSE_MAIL_USER"
	EnvMailPassword   = "PULSE_MAIL_PASSWD"
	EnvSiteName       = "PULSE_SITE_NAME"
	EnvSMTPEncryption = "PULSE_MAIL_SMTP_ENCRYPTION"
	EnvSMTPPort       = "PULSE_MAIL_SMTP_PORT"
)

// ApplyEnv overrides mail settings with any of the PULSE_* variables that
// lookup finds. Pass os.LookupEnv outside of tests.
func (m *Meta) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvSiteEmail, &m.Mail.SiteEmail},
		{EnvMailServer, &m.Mail.Server},
		{EnvMailUser, &m.Mail.User},
		{EnvMailPassword, &m.Mail.Password},
		{EnvSiteName, &m.Mail.SiteName},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
			log.Debug().Str("variable", s.key).Msg("config overridden from the environment")
		}
	}

	if v, ok := lookup(EnvMailMethod); ok {
		me, err := email.ParseMethod(v)
		if err != nil {
			return fmt.Errorf("can't parse %v: %v", EnvMailMethod, err)
		}
		m.Mail.Method = me
	}

	if v, ok := lookup(EnvSMTPEncryption); ok {
		e, err := email.ParseEncryption(v)
		if err != nil {
			return fmt.Errorf("can't parse %v: %v", EnvSMTPEncryption, err)
		}
		m.Mail.SMTPEncryption = e
	}

	if v, ok := lookup(EnvSMTPPort); ok && v != "" && v != "default" {
		p, err := email.ParsePort(v)
		if err != nil {
			return fmt.Errorf("can't parse %v: %v", EnvSMTPPort, err)
		}
		m.Mail.SMTPPort = p
	}

	return nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{Log: m.Log}

	if _, err := m.Log.Level(); err != nil {
		return Meta{}, err
	}

	e, err := m.Mail.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Mail = e

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	var es email.Config = email.Config{}
	if m.Mail == es {
		return &Meta{}, errors.New("must include a \"mail\" section")
	}

	return &m, nil
}
