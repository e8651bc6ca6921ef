package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"Socially/internal/di"
	"Socially/pkg/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("socially", version)
		return
	}
	if err := run(*configPath); err != nil {
		log.Printf("socially: %v", err)
		os.Exit(1)
	}
}

// run blocks until the app receives SIGINT or SIGTERM.
func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Printf("socially %s env=%s broker=%s cache=%s kafka=%t",
		version, cfg.Environment, cfg.Broker.Driver, cfg.Cache.Driver, cfg.Kafka.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return app.Run()
}
