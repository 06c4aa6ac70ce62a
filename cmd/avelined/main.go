// Command avelined runs the aveline daemon in the foreground without the CLI
// wrapper, for use under a service manager. The config path is taken from
// AVELINE_CONFIG, which may also be set in a .env file.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"aveline/internal/config"
	"aveline/internal/daemonrun"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Getenv("AVELINE_CONFIG")); err != nil {
		log.Fatalf("avelined: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{
		LogLevel: os.Getenv("AVELINE_LOG_LEVEL"),
	})
}
