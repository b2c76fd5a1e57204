// Command registrar-oracle serves subscription, trade, redemption and cancellation requests.
package main

import (
	"flag"
	"log"

	"github.com/castframework/cast1-sub000/internal/app"
	"github.com/castframework/cast1-sub000/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml configuration (default config.local.yaml or config.yaml)")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := app.NewLogger(config.AppConfig.Log)

	container, err := app.NewRegistrarContainer(config.AppConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize registrar-oracle")
	}
	if err := app.Serve(container); err != nil {
		logger.WithError(err).Fatal("registrar-oracle stopped with an error")
	}
}
