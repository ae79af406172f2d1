package e2e

// e2e contains integration tests that start from a YAML config on disk and
// finish at an in-process SMTP server. Test dependencies shared with unit
// tests, such as the SMTP server, live in the smtptest package.
