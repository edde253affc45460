package cmd

import (
	"net/url"
	"os"
	"strconv"

	"authkit/internal/browser"
	"authkit/internal/config"
	"authkit/internal/flow"
	"authkit/internal/session"
	"authkit/internal/storage"
	"authkit/pkg/logging"
)

// buildManager wires the full session stack from configuration: file
// storage, the browser user agent, the flow controller, and the session
// manager on top.
func buildManager() (*session.Manager, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := logging.LevelWarn
	if debugMode || cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	store, err := storage.NewFileStore("")
	if err != nil {
		return nil, nil, err
	}

	agent := browser.NewAgent(callbackPort(cfg))
	controller := flow.NewController(cfg, agent)
	manager := session.NewManager(cfg, controller, store)
	return manager, cfg, nil
}

// callbackPort extracts the loopback port from the configured redirect
// URI. Port 0 lets the callback server pick one, for configurations that
// use a custom scheme instead of a fixed loopback port.
func callbackPort(cfg *config.Config) int {
	parsed, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		return 0
	}
	return port
}
