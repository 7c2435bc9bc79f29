package main

import (
	"embed"
	"log"

	"daq-console/internal/bootstrap"
	"daq-console/internal/logger"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	if err := logger.Init(logger.Config{Level: "info"}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	app, err := bootstrap.NewWithAssets(appAssets)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
