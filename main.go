package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"stutter-detection/analysis"
	"stutter-detection/utils"
)

func main() {
	if err := utils.CreateFolder("tmp"); err != nil {
		logger := utils.GetLogger()
		logger.ErrorContext(context.Background(), "failed to create tmp dir",
			slog.Any("error", xerrors.New(err)))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'analyze' or 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "analyze":
		os.Exit(runAnalyze(ctx, os.Args[2:]))
	case "serve":
		serveCmd := newServeFlags()
		serveCmd.fs.Parse(os.Args[2:])
		serve(*serveCmd.protocol, *serveCmd.port)
	default:
		fmt.Println("Expected 'analyze' or 'serve' subcommand")
		os.Exit(1)
	}
}

// exitCode maps an analysis outcome onto the process exit code: 0 for a
// completed run, 130 for interruption, 1 for anything fatal.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, analysis.ErrCancelled):
		return 130
	default:
		return 1
	}
}
