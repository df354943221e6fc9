package main

import (
	"log"
	"os"

	"github.com/lodekb/lodestone/internal/api"
	"github.com/lodekb/lodestone/internal/bridge"
	"github.com/lodekb/lodestone/internal/config"
	"github.com/lodekb/lodestone/internal/facade"
	"github.com/lodekb/lodestone/internal/kb"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("lodestone: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	// The engine initializes lazily on the bridge worker; requests that
	// arrive before it is ready get a 503 from the API layer.
	br := bridge.New(func() *kb.Engine { return kb.NewEngine(cfg.DBPath) }, logger)
	br.Start()
	defer br.Close()

	kbFacade := facade.New(br, cfg.Timeouts, logger)
	srv := api.NewServer(cfg.ListenAddr, kbFacade, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
