package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/cli"
	"finboard/internal/dashboard"
	apphttp "finboard/internal/http"
	"finboard/internal/render"
	"finboard/internal/render/terminal"
	"finboard/internal/state"
	"finboard/internal/tui"
	"finboard/internal/worker"
)

func main() {
	headless := flag.Bool("headless", false, "run without the terminal UI (scheduler and viewer only)")
	envFile := flag.String("env", ".env", "env file to load before reading the configuration")
	logFile := flag.String("log-file", "", "log file for the terminal UI (default: next to the prefs database)")
	flag.Parse()

	cli.LoadEnvFile(*envFile)
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stderr)
	cfg := cli.LoadAndValidateConfig(logger)

	if !*headless {
		path := *logFile
		if path == "" {
			path = filepath.Join(filepath.Dir(cfg.PrefsDBPath), "finboard.log")
		}
		f, err := cli.OpenLogFile(path)
		if err != nil {
			logger.Error("Failed to open log file", "error", err, "path", path)
			os.Exit(1)
		}
		defer f.Close()
		logger = cli.SetupLogger(cfg.LogLevel, f)
	} else {
		logger = cli.SetupLogger(cfg.LogLevel, os.Stdout)
	}

	prefs, closePrefs := cli.InitPrefs(logger, cfg)
	defer closePrefs()

	client := api.NewClient(cfg.APIURL, cfg.APITimeout, api.WithLogger(logger))
	surface := terminal.New(cli.TerminalWidth(100))
	dispatch := render.NewDispatcher(surface, logger)
	status := tui.NewStatusLine(10 * time.Second)

	opts := []dashboard.Option{
		dashboard.WithPrefs(prefs),
		dashboard.WithLogger(logger),
		dashboard.WithLimits(cfg.HistoryLimit, cfg.RecentLimit, cfg.RecentDays),
		dashboard.WithTopN(cfg.TopN),
	}
	if !*headless {
		opts = append(opts, dashboard.WithErrorSink(status))
	}

	exporters, err := cli.InitExporters(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporters", "error", err)
		os.Exit(1)
	}
	if len(exporters) > 0 {
		opts = append(opts, dashboard.WithExporter(exporters))
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events are best effort; the dashboard works without them.
			logger.Warn("AMQP unavailable, events disabled", "error", err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, dashboard.WithPublisher(amqpClient))
		}
	}

	d := dashboard.New(client, dispatch, opts...)

	var refresher *worker.RefreshWorker
	if cfg.RefreshSchedule != "" {
		refresher = worker.NewRefreshWorker(d, cfg.RefreshSchedule, cfg.Location(), cfg.APITimeout)
		if err := refresher.Start(); err != nil {
			logger.Error("Failed to start refresh scheduler", "error", err)
			os.Exit(1)
		}
	}

	var viewer *apphttp.Server
	if cfg.ViewerPort != "" {
		viewer = apphttp.NewServer(":"+cfg.ViewerPort, d, logger)
		go func() {
			logger.Info("Starting viewer", "port", cfg.ViewerPort)
			if err := viewer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Viewer error", "error", err, "port", cfg.ViewerPort)
			}
		}()
	}

	parent, stop := context.WithCancel(context.Background())
	defer stop()
	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, func(shutdownCtx context.Context) {
		if refresher != nil {
			refresher.Stop()
		}
		if viewer != nil {
			if err := viewer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Viewer shutdown error", "error", err)
			}
		}
		dispatch.ReleaseAll()
	})

	if err := d.Start(ctx); err != nil {
		logger.Error("Dashboard start failed", "error", err)
	}

	if *headless {
		if err := loginFromTerminal(ctx, d); err != nil {
			logger.Error("Login failed", "error", err)
			stop()
		}
		cli.WaitForShutdown(ctx, done)
		return
	}

	p := tea.NewProgram(tui.New(ctx, d, surface, status), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("Terminal UI error", "error", err)
	}
	stop()
	cli.WaitForShutdown(ctx, done)
}

// loginFromTerminal opens the session when the stored token was missing or
// rejected. It prompts until the backend accepts a password.
func loginFromTerminal(ctx context.Context, d *dashboard.Dashboard) error {
	for d.Status().Auth.ScreenVisible {
		prompt, submit := "Пароль: ", d.Login
		if d.Status().Auth.Mode == state.AuthCreate {
			prompt, submit = "Новый пароль: ", d.SetPassword
		}
		pw, err := cli.ReadPassword(os.Stderr, prompt)
		if err != nil {
			return err
		}
		err = submit(ctx, pw)
		switch {
		case errors.Is(err, api.ErrInvalidPassword):
			_, _ = os.Stderr.WriteString("Неверный пароль\n")
		case errors.Is(err, api.ErrPasswordRejected):
			_, _ = os.Stderr.WriteString("Пароль не принят\n")
		case err != nil:
			return err
		}
	}
	return nil
}
