// Command sdl2 opens a window and renders the thin-film scene into it.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/settings"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	runtime.LockOSThread()

	configPath := flag.String("config", "", "path to a TOML settings file")
	flag.Parse()

	s, err := settings.Load(*configPath)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	err = s.Validate()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	logger := newLogger(s.LogLevel)
	gpu.SetLogger(logger)

	app := &App{
		settingsPath: *configPath,
		settings:     s,
		logger:       logger,
	}

	err = app.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
