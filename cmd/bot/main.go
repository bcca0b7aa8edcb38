package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petitchat/internal/app"
	"petitchat/internal/config"
	"petitchat/internal/delivery"
)

func main() {
	var (
		cfgPath string
		envFile string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file to load (missing file is ignored)")
	flag.BoolVar(&once, "once", false, "run a single delivery cycle and exit")
	flag.Parse()

	env, err := config.LoadEnv(envFile)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath, env)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if once {
		rep := a.RunOnce(ctx)
		_ = a.Stop(context.Background())
		fmt.Printf("cycle %s: %d sent in %s\n", rep.CycleID, rep.Count(delivery.OutcomeSent), rep.Elapsed.Round(time.Millisecond))
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
