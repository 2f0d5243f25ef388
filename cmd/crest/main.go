package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crest/internal/app"
	logx "crest/pkg/logx"
)

func main() {
	var (
		cfgPath       string
		check         bool
		probeWebhooks bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&check, "check", false, "validate the config and exit")
	flag.BoolVar(&probeWebhooks, "probe-webhooks", false, "with -check, also probe every Jandi webhook")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if check {
		os.Exit(runCheck(ctx, cfgPath, probeWebhooks))
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		stop(a)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	if err := stop(a); err != nil {
		a.Logger().Error("shutdown failed", logx.Err(err))
		os.Exit(1)
	}
}

func stop(a *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.Stop(ctx)
}

func runCheck(ctx context.Context, cfgPath string, probeWebhooks bool) int {
	log := logx.NewConsole("warn")
	rep, err := app.Check(ctx, cfgPath, probeWebhooks, log)
	for _, name := range rep.Scheduled {
		fmt.Println("ok:", name)
	}
	if probeWebhooks {
		fmt.Printf("probed %d webhook(s)\n", rep.Webhooks)
	}
	if err != nil {
		if errors.Is(err, app.ErrNoTasks) {
			fmt.Println("fatal:", err)
			return 1
		}
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Println("error:", line)
		}
		return 1
	}
	return 0
}
