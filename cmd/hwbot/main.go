package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"hwbot/internal/app"
	"hwbot/internal/config"
	"hwbot/pkg/logx"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", defaultConfigPath(), "path to config yaml/json (optional; environment variables are enough)")
	flag.StringVar(&envPath, "env", ".env", "path to .env file (optional)")
	flag.Parse()

	bootLog := logx.NewConsole("info").With(logx.String("comp", "main"))

	envRequired := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "env" {
			envRequired = true
		}
	})
	if err := config.LoadDotEnv(envPath, envRequired); err != nil {
		bootLog.Error("env file load failed", logx.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfgPath); err != nil {
		if errors.Is(err, config.ErrMissingRequired) {
			bootLog.Error("required configuration is missing; exiting", logx.Err(err))
		} else {
			bootLog.Error("fatal", logx.Err(err))
		}
		cancel()
		os.Exit(1)
	}
}

// defaultConfigPath picks the first config file present in the working directory.
func defaultConfigPath() string {
	for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}
