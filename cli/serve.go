package cli

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/evidensys/padessign"
	"github.com/evidensys/padessign/server"
)

// ServeCommand starts the HTTP workflow adapter.
func ServeCommand() {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)

	var configFile string
	var addr string
	serveFlags.StringVar(&configFile, "config", "", "Path to a toml configuration file")
	serveFlags.StringVar(&addr, "addr", ":8080", "Listen address")

	serveFlags.Usage = func() {
		fmt.Printf("Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Println("Serve the signing workflow over HTTP")
		fmt.Println("\nOptions:")
		serveFlags.PrintDefaults()
	}

	if err := serveFlags.Parse(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workflow := padessign.New(cfg, logger)
	srv := server.New(workflow, logger)

	logger.Info("listening", zap.String("addr", addr))
	if err := srv.Start(ctx, addr); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", zap.Error(err))
		osExit(1)
	}
}
