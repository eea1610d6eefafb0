// Command demoserver serves storefront pages that each carry one dark
// pattern, plus a clean control page.
//
//	go run ./cmd/demoserver -addr 127.0.0.1:9999
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/patternshield/internal/demoserver"
	"github.com/raysh454/patternshield/internal/logging"
)

func main() {
	cfg := demoserver.DefaultConfig()
	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	flag.IntVar(&cfg.InitialVersion, "version", cfg.InitialVersion, "version every page starts on")
	flag.Parse()

	logger := logging.NewStdoutLogger("demoserver")

	fmt.Println("Pages:")
	for _, p := range demoserver.GetAllPages() {
		label := string(p.Category)
		if label == "" {
			label = "clean"
		}
		fmt.Printf("  %-10s %-28s %s\n", p.Path, label, p.Description)
	}
	fmt.Printf("\nControl panel: http://%s/demo/control\n\n", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("demo store listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
	if err := demoserver.NewDemoServer(cfg).Start(ctx); err != nil {
		logger.Error("demo store stopped", logging.Field{Key: "error", Value: err})
		os.Exit(1)
	}
}
