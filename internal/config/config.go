package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Target  TargetConfig  `yaml:"target" mapstructure:"target"`
	Login   LoginConfig   `yaml:"login" mapstructure:"login"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// TargetConfig names the application under capture.
type TargetConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	HomePath  string `yaml:"home_path" mapstructure:"home_path"`
	LoginPath string `yaml:"login_path" mapstructure:"login_path"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// LoginConfig configures the login form automation.
type LoginConfig struct {
	Username      string        `yaml:"username" mapstructure:"username"`
	Password      string        `yaml:"password" mapstructure:"password"`
	FormSelector  string        `yaml:"form_selector" mapstructure:"form_selector"`
	UsernameField string        `yaml:"username_field" mapstructure:"username_field"`
	PasswordField string        `yaml:"password_field" mapstructure:"password_field"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// CrawlConfig configures navigation and capture.
type CrawlConfig struct {
	FailOnTimeout     bool          `yaml:"fail_on_timeout" mapstructure:"fail_on_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	Background        string        `yaml:"background" mapstructure:"background"`
	Rate              float64       `yaml:"rate" mapstructure:"rate"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	ShowUI         bool   `yaml:"show_ui" mapstructure:"show_ui"`
	ProxyURL       string `yaml:"proxy_url" mapstructure:"proxy_url"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// NotifyConfig configures the optional websocket notification listener.
type NotifyConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"home":            "target.home_path",
	"login":           "target.login_path",
	"username":        "login.username",
	"password":        "login.password",
	"login-timeout":   "login.timeout",
	"fail-on-timeout": "crawl.fail_on_timeout",
	"nav-timeout":     "crawl.navigation_timeout",
	"settle":          "crawl.settle_delay",
	"rate":            "crawl.rate",
	"showui":          "browser.show_ui",
	"proxy":           "browser.proxy_url",
	"notify-url":      "notify.url",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// Load reads configuration from defaults, an optional file, the environment
// and flags, in increasing order of precedence. An empty file means
// shotcrawl.yaml in the working directory, if present. flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Config file
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("shotcrawl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("SHOTCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("target.base_url", "")
	v.SetDefault("target.home_path", "/home")
	v.SetDefault("target.login_path", "/login")
	v.SetDefault("target.output_dir", "")
	v.SetDefault("login.username", "test@test.ch")
	v.SetDefault("login.password", "test")
	v.SetDefault("login.form_selector", "#login_form")
	v.SetDefault("login.username_field", "id_username")
	v.SetDefault("login.password_field", "id_password")
	v.SetDefault("login.timeout", 2*time.Second)
	v.SetDefault("login.poll_interval", 50*time.Millisecond)
	v.SetDefault("crawl.fail_on_timeout", false)
	v.SetDefault("crawl.navigation_timeout", 10*time.Second)
	v.SetDefault("crawl.settle_delay", 200*time.Millisecond)
	v.SetDefault("crawl.background", "#000000")
	v.SetDefault("crawl.rate", 0.0)
	v.SetDefault("browser.show_ui", false)
	v.SetDefault("browser.proxy_url", "")
	v.SetDefault("browser.viewport_width", 1024)
	v.SetDefault("browser.viewport_height", 600)
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.reconnect_delay", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, eris.Wrapf(err, "config: bind flag %s", name)
			}
		}
	}

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return eris.New("config: base address is required")
	}
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return eris.Wrap(err, "config: parse base address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return eris.Errorf("config: base address %q must be http or https", c.Target.BaseURL)
	}
	if u.Host == "" {
		return eris.Errorf("config: base address %q has no host", c.Target.BaseURL)
	}
	if c.Target.OutputDir == "" {
		return eris.New("config: output directory is required")
	}
	if c.Login.Timeout <= 0 {
		return eris.New("config: login.timeout must be positive")
	}
	if c.Login.PollInterval <= 0 {
		return eris.New("config: login.poll_interval must be positive")
	}
	if c.Crawl.NavigationTimeout <= 0 {
		return eris.New("config: crawl.navigation_timeout must be positive")
	}
	if c.Crawl.SettleDelay < 0 {
		return eris.New("config: crawl.settle_delay must not be negative")
	}
	if c.Crawl.Rate < 0 {
		return eris.New("config: crawl.rate must not be negative")
	}
	if c.Notify.URL != "" && c.Notify.ReconnectDelay <= 0 {
		return eris.New("config: notify.reconnect_delay must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
