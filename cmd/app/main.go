package main

import (
	"context"
	"flag"
	"log"
	"os"

	"AirView/internal/di"
	"AirView/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s backend=%s cache=%s", cfg.Environment, cfg.Backend.Type, cfg.Cache.Type)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	// Run blocks until a signal arrives.
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		cleanup()
		os.Exit(1)
	}
}
