package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shotcrawl/internal/browser"
	"shotcrawl/internal/config"
	"shotcrawl/internal/crawl"
	"shotcrawl/internal/login"
	"shotcrawl/internal/notify"
	"shotcrawl/internal/page"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:     "shotcrawl [flags] <base-address> <output-dir>",
		Short:   "Screenshot every page of a web application, logged out and logged in",
		Version: version,
		Long: `shotcrawl opens the home page of a web application in a headless browser,
follows every link that stays under the base address and saves a PNG
screenshot of each page. It then logs in through the login form and does the
same again as the authenticated user.`,
		Example: `  # Capture a local development server
  shotcrawl http://localhost:8000 ./shots

  # Use other credentials and stop on the first page that fails to load
  shotcrawl --username admin@example.com --password secret --fail-on-timeout http://localhost:8000 ./shots

  # Read settings from a file, environment variables override it
  SHOTCRAWL_CRAWL_RATE=2 shotcrawl --config site.yaml http://localhost:8000 ./shots`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				os.Exit(0)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFile, args)
			if err != nil {
				return err
			}
			if err := config.InitLogger(cfg.Log); err != nil {
				return err
			}
			defer func() { _ = zap.L().Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				zap.L().Error("run failed", zap.Error(err))
				return err
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Config file (default ./shotcrawl.yaml if present)")
	rootCmd.Flags().String("home", "/home", "Home path, appended to the base address")
	rootCmd.Flags().String("login", "/login", "Login path, appended to the base address")
	rootCmd.Flags().StringP("username", "u", "test@test.ch", "Login username")
	rootCmd.Flags().StringP("password", "P", "test", "Login password")
	rootCmd.Flags().Bool("fail-on-timeout", false, "Abort on the first page that fails to load or capture")
	rootCmd.Flags().Duration("nav-timeout", 10*time.Second, "Page load timeout")
	rootCmd.Flags().Duration("login-timeout", 2*time.Second, "Timeout for the whole login")
	rootCmd.Flags().Duration("settle", 200*time.Millisecond, "Wait after load before capturing")
	rootCmd.Flags().Float64("rate", 0, "Max page loads per second (0 for no limit)")
	rootCmd.Flags().Bool("showui", false, "Show browser UI (disable headless mode)")
	rootCmd.Flags().StringP("proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890)")
	rootCmd.Flags().String("notify-url", "", "Websocket URL to listen to server notifications on during the run")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "json", "Log format (json, console)")

	return rootCmd
}

func loadConfig(cmd *cobra.Command, configFile string, args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.Target.BaseURL = normalizeURL(args[0])
	cfg.Target.OutputDir = args[1]
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := zap.L().With(zap.String("run_id", uuid.NewString()))
	logger.Info("starting run",
		zap.String("base", cfg.Target.BaseURL),
		zap.String("output", cfg.Target.OutputDir),
		zap.Bool("fail_on_timeout", cfg.Crawl.FailOnTimeout),
	)

	if err := os.MkdirAll(cfg.Target.OutputDir, 0755); err != nil {
		return eris.Wrap(err, "main: create output directory")
	}

	if cfg.Notify.URL != "" {
		client := notify.New(notify.Options{
			URL:            cfg.Notify.URL,
			ReconnectDelay: cfg.Notify.ReconnectDelay,
			Handlers:       notifyHandlers(logger),
			Logger:         logger,
		})
		client.Start(ctx)
		defer client.Close()
	}

	b, err := browser.New(browser.Config{
		Headless: !cfg.Browser.ShowUI,
		ProxyURL: cfg.Browser.ProxyURL,
		Width:    cfg.Browser.ViewportWidth,
		Height:   cfg.Browser.ViewportHeight,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	tab, err := b.NewPage()
	if err != nil {
		return err
	}
	p := page.NewRod(tab, logger)
	defer p.Close()

	auth := login.New(p, login.Options{
		Form: page.Form{
			Selector:      cfg.Login.FormSelector,
			UsernameField: cfg.Login.UsernameField,
			PasswordField: cfg.Login.PasswordField,
			Username:      cfg.Login.Username,
			Password:      cfg.Login.Password,
		},
		Timeout:      cfg.Login.Timeout,
		PollInterval: cfg.Login.PollInterval,
		Logger:       logger,
	})

	r := crawl.NewRun(p, auth, crawl.Options{
		BaseURL:           cfg.Target.BaseURL,
		HomePath:          cfg.Target.HomePath,
		LoginPath:         cfg.Target.LoginPath,
		OutputDir:         cfg.Target.OutputDir,
		FailOnTimeout:     cfg.Crawl.FailOnTimeout,
		NavigationTimeout: cfg.Crawl.NavigationTimeout,
		SettleDelay:       cfg.Crawl.SettleDelay,
		Background:        cfg.Crawl.Background,
		Rate:              cfg.Crawl.Rate,
		Logger:            logger,
	})
	return r.Execute(ctx)
}

func notifyHandlers(logger *zap.Logger) notify.Handlers {
	return notify.Handlers{
		OnConnect: func() {
			logger.Info("notification channel open")
		},
		OnMessage: func(msg any) {
			logger.Debug("server notification", zap.Any("message", msg))
		},
		OnDisconnect: func() {
			logger.Info("notification channel closed, reconnecting")
		},
		OnError: func(err error) {
			logger.Warn("notification channel error", zap.Error(err))
		},
	}
}

// normalizeURL adds http:// if there is no scheme and drops trailing slashes
// so paths can be appended to it.
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") && !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		rawURL = "http://" + rawURL
	}
	return strings.TrimRight(rawURL, "/")
}
