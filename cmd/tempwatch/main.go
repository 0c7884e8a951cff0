package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tempwatch/internal/config"
	"tempwatch/internal/logger"
	"tempwatch/internal/monitor"
	"tempwatch/internal/notify"
	"tempwatch/internal/source"
	"tempwatch/internal/stream"
)

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutting down")
		cancel()
	}()

	switch cmd {
	case "run":
		if err := runMonitor(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("monitor failed")
		}
	case "test":
		fs := flag.NewFlagSet("test", flag.ExitOnError)
		message := fs.String("message", "", "custom message text to send")
		fs.StringVar(message, "m", "", "custom message text to send (shorthand)")
		_ = fs.Parse(args)

		if err := runTest(ctx, cfg, *message); err != nil {
			log.Fatal().Err(err).Msg("test notification failed")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: tempwatch [run|test -message <text>]\n", cmd)
		os.Exit(2)
	}
}

func runMonitor(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	if err := cfg.ValidateRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("invalid TIMEZONE, using system local")
		loc = nil
	}

	notifier, err := notify.NewWebhook(notify.WebhookConfig{
		URL:        cfg.WebhookURL,
		Format:     cfg.WebhookFormat,
		PayloadKey: cfg.PayloadKey,
		VerifyTLS:  cfg.VerifyTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	src, err := source.NewPostgres(ctx, cfg.DatabaseURL, cfg.Query)
	if err != nil {
		return fmt.Errorf("failed to create reading source: %w", err)
	}
	defer src.Close()

	var events *stream.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		events, err = stream.NewPublisher(stream.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("failed to create alert event publisher: %w", err)
		}
		defer events.Close()
	}

	m := monitor.New(cfg, monitor.Options{
		Source:   src,
		Notifier: notifier,
		Events:   events,
		Location: loc,
	})

	return m.Run(ctx)
}

func runTest(ctx context.Context, cfg *config.Config, message string) error {
	log := logger.WithComponent("main")

	if err := cfg.ValidateTest(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("invalid TIMEZONE, using system local")
		loc = nil
	}

	notifier, err := notify.NewWebhook(notify.WebhookConfig{
		URL:        cfg.WebhookURL,
		Format:     cfg.WebhookFormat,
		PayloadKey: cfg.PayloadKey,
		VerifyTLS:  cfg.VerifyTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	return monitor.SendTest(ctx, notifier, cfg.SensorName, loc, message)
}
