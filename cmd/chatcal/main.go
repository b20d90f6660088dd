package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatcal/internal/calendar"
	"chatcal/internal/chat"
	"chatcal/internal/config"
	"chatcal/internal/ics"
	appLog "chatcal/internal/log"
	"chatcal/internal/mcpserver"
	"chatcal/internal/planner"
	"chatcal/internal/scheduler"
	"chatcal/internal/session"
	"chatcal/internal/store"
	"chatcal/internal/tools"
	"chatcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	logLevel   string
	mcp        bool
}

func main() {
	flags := parseFlags()

	// A missing .env is normal; real environment variables still apply.
	if err := godotenv.Load(flags.envPath); err != nil && !os.IsNotExist(err) {
		appLog.Warn("failed to load env file", "path", flags.envPath, "err", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.LookupEnv)

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("chatcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"log_level", conf.LogLevel,
		"refresh", conf.RefreshCron,
		"planner_endpoint", conf.Planner.Endpoint,
		"planner_model", conf.Planner.Model,
		"basic_auth", conf.BasicAuth != nil,
		"mcp", flags.mcp,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New()
	cal := calendar.New(st, nil)
	timeout := time.Duration(conf.Planner.TimeoutSeconds) * time.Second
	gen := planner.NewFallback(
		planner.NewLLM(conf.Planner.Endpoint, conf.Planner.Model, &http.Client{}),
		planner.NewHeuristic(nil),
		timeout,
	)
	dispatcher := tools.NewDispatcher(tools.Options{
		Calendar:  cal,
		Assistant: chat.New(cal, session.NewManager(), gen, nil),
		Planner:   gen,
		Fetcher:   ics.NewFetcher(nil),
	})

	sched, err := scheduler.New(conf.RefreshCron, cal.Recurrence())
	if err != nil {
		appLog.Error("failed to start scheduler", err)
		os.Exit(1)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if flags.mcp {
		err = mcpserver.Serve(ctx, mcpserver.New(version, dispatcher), os.Stdin, os.Stdout)
	} else {
		err = web.NewServer(conf, dispatcher).ListenAndServe(ctx)
	}
	if err != nil && ctx.Err() == nil {
		appLog.Error("server stopped", err)
		stop()
		<-sched.Stop().Done()
		os.Exit(1)
	}
	appLog.Info("chatcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./chatcal.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to a .env file with CHATCAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	flag.BoolVar(&cfg.mcp, "mcp", false, "Serve MCP over stdio instead of HTTP")

	flag.Parse()

	return cfg
}
