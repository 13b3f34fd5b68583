package main

import (
	"log/slog"

	"github.com/purpose168/mnemo/internal/cmd"
	"github.com/purpose168/mnemo/internal/log"
)

func main() {
	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
	})

	cmd.Execute()
}
