package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/clientkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server"
	"github.com/dmitrijs2005/clientkeeper/internal/server/config"
	"github.com/dmitrijs2005/clientkeeper/internal/telemetry"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(cfg.LogLevel)

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.TelemetryEndpoint,
		Insecure:    true,
		ServiceName: "clientkeeper-server",
	})
	if err != nil {
		logger.Warn(ctx, "telemetry disabled", "error", err)
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
