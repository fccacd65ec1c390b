package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/clientkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/clientkeeper/internal/client/cli"
	"github.com/dmitrijs2005/clientkeeper/internal/client/config"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/telemetry"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	logger, logCloser := logging.NewFileLogger(logging.FileOptions{
		Path:       cfg.LogFile,
		Level:      cfg.LogLevel,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
	defer logCloser.Close()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.TelemetryEndpoint,
		Insecure:    true,
		ServiceName: "clientkeeper-cli",
	})
	if err != nil {
		logger.Warn(ctx, "telemetry disabled", "error", err)
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
