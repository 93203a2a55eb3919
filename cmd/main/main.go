package main

import (
	"context"
	"flag"
	"krosty/internal/pkg/app"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file, created with defaults if missing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(ctx, *configPath); err != nil {
		log.Fatal(err)
	}
}
