package commands

import (
	"context"
	"os"

	"sentinel/config"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a default config file, refusing to overwrite an existing one.
func RunInit(ctx context.Context, cfg *config.Config, path string) {
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("Config file %s already exists", path)
	}

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	log.Infof("Wrote default config to %s, set tracker.onion_address before running serve", path)
}
