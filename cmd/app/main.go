package main

import (
	"log"

	"daq-console/internal/bootstrap"
	"daq-console/internal/logger"
)

func main() {
	if err := logger.Init(logger.Config{Level: "info"}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
