package e2e

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/ptgott/pulsemail/userconfig"
)

// appConfigOptions is used to fill in a config template with details unique to
// a specific test environment. Keep this as small as possible so the input
// remains as close to a "real" YAML document as we can make it.
//
// Fields are exported so we can use them in templates.
type appConfigOptions struct {
	SMTPHost   string
	SMTPPort   string
	Encryption string
	SiteName   string
}

const configTemplate = `---
mail:
    method: smtp
    server: {{ .SMTPHost }}
    smtpPort: {{ .SMTPPort }}
    smtpEncryption: {{ .Encryption }}
    user: myuser123
    password: myuser123
    siteEmail: shop@example.com
    siteName: {{ .SiteName }}
    heloName: app.example.com
    skipCertVerification: true
    timeout: 10s
log:
    level: debug
`

// createAppConfig writes a configuration YAML doc to the given path.
func createAppConfig(path string, opts appConfigOptions) error {
	tmpl, err := template.New("conf").Parse(configTemplate)

	// This means the config template string was written incorrectly. Not
	// an issue with the application itself.
	if err != nil {
		return fmt.Errorf("couldn't parse the application config template: %v", err)
	}

	var config bytes.Buffer

	err = tmpl.Execute(&config, opts)

	// This is an issue with the test environment, not the application
	if err != nil {
		return fmt.Errorf("couldn't populate the application config template: %v", err)
	}

	if err := os.WriteFile(path, config.Bytes(), 0600); err != nil {
		return fmt.Errorf("couldn't write to the config file: %v", err)
	}

	return nil
}

// loadUserConfig writes a config file to dir and reads it back the way the
// application does at startup.
func loadUserConfig(dir string, opts appConfigOptions, env map[string]string) (*userconfig.Meta, error) {
	p := filepath.Join(dir, "config.yaml")
	if err := createAppConfig(p, opts); err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := userconfig.Parse(f)
	if err != nil {
		return nil, err
	}

	err = m.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		return nil, err
	}

	c, err := m.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}
	return &c, nil
}
