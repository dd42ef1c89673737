package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/cradoe/kudi/internal/app"
	"github.com/cradoe/kudi/internal/version"
	"github.com/cradoe/kudi/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	application, err := app.NewApplication(logger)
	if err != nil {
		return err
	}
	defer application.DB.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	wk := worker.New(&worker.Worker{
		KafkaStream:  application.Kafka,
		UserRepo:     application.DB.User(),
		WalletRepo:   application.DB.Wallet(),
		ActivityRepo: application.DB.Activity(),
		Mailer:       application.Mailer,
		Ctx:          workerCtx,
		Helper:       application.Helper,
	})

	go wk.NotificationWorker()

	return application.ServeHTTP()
}
