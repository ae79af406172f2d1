package email

// email is responsible for sending a single transactional email, either to
// an SMTP relay or to the local MTA through sendmail. That includes
// connecting to the relay, negotiating TLS and authentication, converting
// recipient domains to punycode, encoding display names, and building the
// MIME-formatted message. It is not designed to produce the user-facing
// content of an email, and sends whatever HTML the caller hands it.
