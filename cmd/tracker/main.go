package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"cdclessontracker/config"
	"cdclessontracker/internal/adapters/cdc"
	"cdclessontracker/internal/adapters/email"
	"cdclessontracker/internal/repository/markerfile"
	"cdclessontracker/internal/services"
)

func main() {
	headless := flag.Bool("headless", false, "run the browser in headless mode")
	flag.Parse()

	logger := config.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("------------------------------")
	logger.Info("running", "user", cfg.Username)
	logger.Info("------------------------------")

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.FromEmail,
		SMTP: email.SMTPConfig{
			Host:     cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		},
		SES: email.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
		},
	}, logger)
	if err != nil {
		logger.Error("invalid mail configuration", "error", err)
		os.Exit(1)
	}

	markers := markerfile.NewStore(cfg.MarkerDir)

	notify := services.NewNotifyService(services.NotifyConfig{
		User:         cfg.Username,
		ToEmail:      cfg.ToEmail,
		NotifyAlways: cfg.NotifyAlways,
		DayFilter:    cfg.DayFilter,
		HourFilter:   cfg.HourFilter,
	}, markers, mailer, logger)

	source := cdc.New(cdc.Config{
		Username:   cfg.Username,
		Password:   cfg.Password,
		HomeURL:    cfg.HomeURL,
		BookingURL: cfg.BookingURL,
		Headless:   *headless,
	}, logger)

	poller := services.NewPoller(services.PollerConfig{
		CheckPractical: cfg.CheckPractical,
		CheckBTT:       cfg.CheckBTT,
		CheckRTT:       cfg.CheckRTT,
		CheckPT:        cfg.CheckPT,
		StayAlive:      cfg.StayAlive,
		RefreshRate:    cfg.RefreshRate,
	}, source, notify, logger)

	if err := poller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("stopped")
			return
		}
		logger.Error("polling aborted", "error", err)
		os.Exit(1)
	}
}
