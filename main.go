package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/ptgott/pulsemail/dispatch"
	"github.com/ptgott/pulsemail/userconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	// An interrupt cancels the send in progress. Dialing, the SMTP
	// conversation and the sendmail subprocess all watch this context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	to := flag.String("to", "", "comma-separated recipient addresses")
	toName := flag.String(
		"to-name",
		"",
		"comma-separated recipient names: one name for everyone or one per -to address",
	)
	bcc := flag.String("bcc", "", "comma-separated blind copy addresses")
	subject := flag.String("subject", "", "subject line")
	htmlPath := flag.String("html", "", "path to the HTML body")
	attach := flag.String("attach", "", "comma-separated paths of files to attach")
	from := flag.String("from", "", "sender address (default: siteEmail from the config)")
	fromName := flag.String("from-name", "", "sender name (default: siteName from the config)")
	replyTo := flag.String("reply-to", "", "Reply-To address (default: the sender)")
	replyToName := flag.String("reply-to-name", "", "Reply-To name")
	dryRun := flag.Bool(
		"dry-run",
		false,
		"print the composed message to stdout instead of sending it",
	)
	level := flag.String(
		"level",
		"",
		`log level: "info", "debug", "warn" or "error" (overrides the config)`,
	)
	flag.Parse()

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the application")

	f, err := os.Open(*configPath)

	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()

	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		log.Error().
			Err(err).
			Msg("Problem reading settings from the environment")
		os.Exit(1)
	}

	if *level != "" {
		config.Log.LevelName = *level
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	// Already validated
	l, _ := checkedConfig.Log.Level()
	log.Logger = log.Logger.Level(l)
	zerolog.SetGlobalLevel(l)

	log.Info().Str("configPath", *configPath).Msg("successfully validated the config")

	n, err := dispatch.Run(ctx, dispatch.Options{
		To:          dispatch.SplitList(*to),
		ToNames:     dispatch.SplitList(*toName),
		Bcc:         dispatch.SplitList(*bcc),
		Subject:     *subject,
		HTMLPath:    *htmlPath,
		From:        *from,
		FromName:    *fromName,
		ReplyTo:     *replyTo,
		ReplyToName: *replyToName,
		Attachments: dispatch.SplitList(*attach),
		DryRun:      *dryRun,
		Output:      os.Stdout,
	}, &checkedConfig)

	if err != nil {
		log.Error().
			Err(err).
			Msg("can't send the email")
		os.Exit(1)
	}

	log.Info().Int("recipients", n).Msg("done")
}
