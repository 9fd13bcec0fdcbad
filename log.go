package main

import (
	"os"

	"golang.org/x/term"

	"github.com/telcprep/sprachcache/internal/config"
	"github.com/telcprep/sprachcache/internal/logging"
)

var closeLog = func() error { return nil }

func setupLog(cfg config.Config) error {
	closer, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		Debug:   cfg.Debug,
		Dir:     cfg.DataDir,
		Output:  os.Stderr,
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	})
	if err != nil {
		return err
	}
	closeLog = closer
	return nil
}
