package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"calbot/internal/agent"
	"calbot/internal/calendar"
	"calbot/internal/config"
	"calbot/internal/google"
	"calbot/internal/icloud"
	"calbot/internal/instrumentation"
	"calbot/internal/llm"
	"calbot/internal/logging"
	"calbot/internal/mcpserver"
	"calbot/internal/tools"
	"calbot/internal/transport"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:    "calbot",
		Usage:   "A conversational calendar assistant backed by a local language model.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Optional YAML config file.", EnvVars: []string{"CALBOT_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "Overrides LOG_LEVEL (debug, info, warn, error)."},
		},
		Commands: []*cli.Command{
			authCommand(),
			botCommand(),
			chatCommand(),
			mcpCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// app carries what every command needs after configuration is loaded.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *instrumentation.Provider
}

func setup(c *cli.Context, requirements func(config.Config) config.Requirements) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)

	if err := cfg.Validate(requirements(cfg)); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics, err := instrumentation.NewProvider("calbot", cfg.MetricsAddr != "")
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	return &app{cfg: cfg, logger: logger, metrics: metrics}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to shut down metrics", logging.Err(err))
	}
}

// serveMetrics exposes /metrics and /healthz until ctx is done. It does nothing when METRICS_ADDR is unset.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: a.metrics.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		a.logger.Info("Serving metrics", "addr", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", logging.Err(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (a *app) googleClient(opts ...google.Option) *google.CalendarClient {
	creds := google.Credentials{
		Path:         a.cfg.GoogleCalendarCredentialsPath,
		ClientID:     a.cfg.GoogleClientID,
		ClientSecret: a.cfg.GoogleClientSecret,
	}
	opts = append([]google.Option{google.WithCalendarID(a.cfg.GoogleCalendarID)}, opts...)
	return google.NewClient(a.logger, creds, google.NewFileTokenStore(a.cfg.GoogleCalendarTokenPath), opts...)
}

// calendarProvider builds the configured backend and authenticates it.
// Authentication failures are logged; tools then report that the calendar is not connected.
func (a *app) calendarProvider(ctx context.Context) calendar.Provider {
	var p calendar.Provider
	switch a.cfg.CalendarBackend {
	case config.BackendCalDAV:
		p = icloud.NewClient(a.logger, a.cfg.ICloudUsername, a.cfg.ICloudAppSpecificPassword, a.cfg.ICloudCalendarName,
			icloud.WithEndpoint(a.cfg.CalDAVURL))
	case config.BackendMemory:
		p = calendar.NewMemoryProvider()
	default:
		p = a.googleClient()
	}
	p = calendar.NewInstrumented(p, a.cfg.CalendarBackend, a.metrics.Metrics(), a.logger)

	if err := p.Authenticate(ctx); err != nil {
		a.logger.Error("Calendar authentication failed", logging.Backend(a.cfg.CalendarBackend), logging.Err(err))
	} else {
		a.logger.Info("Calendar connected", logging.Backend(a.cfg.CalendarBackend))
	}
	return p
}

func (a *app) toolset(ctx context.Context) *tools.Toolset {
	return tools.New(a.calendarProvider(ctx),
		tools.WithLogger(a.logger),
		tools.WithMetrics(a.metrics.Metrics()),
	)
}

func (a *app) orchestrator(ctx context.Context, transportName string) (*agent.Orchestrator, error) {
	executor, err := agent.NewToolExecutor(a.toolset(ctx))
	if err != nil {
		return nil, err
	}
	model := llm.NewOllamaClient(a.cfg.OllamaURL, a.cfg.OllamaModelName, a.cfg.TemperatureValue(),
		llm.WithLogger(a.logger),
		llm.WithMetrics(a.metrics.Metrics()),
	)
	return agent.New(model, executor, a.cfg.Timezone,
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics.Metrics()),
		agent.WithTransport(transportName),
	)
}

type runner interface {
	Name() string
	Run(ctx context.Context) error
}

func (a *app) chatTransport(orch *agent.Orchestrator) (runner, error) {
	switch a.cfg.Transport {
	case config.TransportDiscord:
		return transport.NewDiscord(a.cfg.DiscordToken, a.cfg.DiscordChannelID, orch, a.logger)
	case config.TransportSlack:
		return transport.NewSlack(a.cfg.SlackBotToken, a.cfg.SlackAppToken, a.cfg.SlackChannelID, orch, a.logger), nil
	case config.TransportConsole:
		return transport.NewConsole(os.Stdin, os.Stdout, orch), nil
	default:
		return transport.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramChatID, orch, a.logger)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account and save the token.",
		Action: func(c *cli.Context) error {
			a, err := setup(c, func(config.Config) config.Requirements { return config.Requirements{} })
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.GoogleCalendarTokenPath == "" {
				return errors.New("GOOGLE_CALENDAR_TOKEN_PATH must be set")
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			a.logger.Info("Starting Google authentication flow.")
			client := a.googleClient(google.WithAuthFlow(google.LocalServerFlow(a.logger, os.Stdout)))
			if err := client.Authenticate(ctx); err != nil {
				return fmt.Errorf("google authentication failed: %w", err)
			}

			calendars, err := client.ListCalendars(ctx)
			if err != nil {
				a.logger.Warn("Authenticated, but listing calendars failed", logging.Err(err))
				return nil
			}
			fmt.Println("Available calendars (set GOOGLE_CALENDAR_ID to use one other than primary):")
			for id, summary := range calendars {
				fmt.Printf("  %s  %s\n", id, summary)
			}
			a.logger.Info("Successfully authenticated and saved token.", "file", a.cfg.GoogleCalendarTokenPath)
			return nil
		},
	}
}

func botCommand() *cli.Command {
	return &cli.Command{
		Name:  "bot",
		Usage: "Run the assistant on the configured chat transport.",
		Action: func(c *cli.Context) error {
			a, err := setup(c, func(cfg config.Config) config.Requirements {
				return config.Requirements{Model: true, Calendar: true, Transport: cfg.Transport}
			})
			if err != nil {
				return err
			}
			defer a.close()
			return a.runChat(c.Context, a.cfg.Transport)
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the assistant in the terminal.",
		Action: func(c *cli.Context) error {
			a, err := setup(c, func(config.Config) config.Requirements {
				return config.Requirements{Model: true, Calendar: true, Transport: config.TransportConsole}
			})
			if err != nil {
				return err
			}
			defer a.close()
			a.cfg.Transport = config.TransportConsole
			return a.runChat(c.Context, config.TransportConsole)
		},
	}
}

func (a *app) runChat(parent context.Context, transportName string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()
	a.serveMetrics(ctx)

	orch, err := a.orchestrator(ctx, transportName)
	if err != nil {
		return fmt.Errorf("failed to create assistant: %w", err)
	}
	t, err := a.chatTransport(orch)
	if err != nil {
		return err
	}
	a.logger.Info("Calendar assistant running",
		logging.Transport(t.Name()),
		logging.Backend(a.cfg.CalendarBackend),
		"model", a.cfg.OllamaModelName,
		"timezone", orch.Timezone(),
	)
	return t.Run(ctx)
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the calendar tools to MCP clients over stdio.",
		Action: func(c *cli.Context) error {
			a, err := setup(c, func(config.Config) config.Requirements {
				return config.Requirements{Calendar: true}
			})
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext(c.Context)
			defer cancel()
			a.serveMetrics(ctx)

			srv, err := mcpserver.New(a.toolset(ctx), version, a.logger)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
