package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khoahotran/tagvault/adapters/vcenter"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot load config: %v\n", err)
		stop()
		os.Exit(reconcile.ExitFatal)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env)

	a := newApp(cfg, appLogger, vcenter.NewDialer(cfg, appLogger), os.Stdout)
	code := a.run(ctx, os.Args[1:])

	stop()
	_ = appLogger.Sync()
	os.Exit(code)
}
