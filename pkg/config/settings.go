package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/twin/pkg/chatclient"
	"github.com/go-go-golems/twin/pkg/logging"
)

const (
	AppName   = "twin"
	EnvPrefix = "TWIN"
)

// Settings is the effective configuration after flags, environment and
// config file have been merged.
type Settings struct {
	APIURL         string        `mapstructure:"api-url" yaml:"api-url"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" yaml:"request-timeout"`

	Widget WidgetSettings   `mapstructure:",squash" yaml:",inline"`
	Log    logging.Settings `mapstructure:",squash" yaml:",inline"`
}

// WidgetSettings holds the texts both widgets display.
type WidgetSettings struct {
	Owner       string `mapstructure:"owner" yaml:"owner"`
	Title       string `mapstructure:"title" yaml:"title"`
	Subtitle    string `mapstructure:"subtitle" yaml:"subtitle"`
	Placeholder string `mapstructure:"placeholder" yaml:"placeholder"`
}

// DisplayTitle is Title, or "<Owner>'s AI Twin" when no title is set.
func (w WidgetSettings) DisplayTitle() string {
	if w.Title != "" {
		return w.Title
	}
	if w.Owner != "" {
		return w.Owner + "'s AI Twin"
	}
	return "AI Twin"
}

// Greeting is the empty-state headline.
func (w WidgetSettings) Greeting() string {
	return "Hello! I'm " + w.DisplayTitle() + "."
}

func DefaultWidget() WidgetSettings {
	return WidgetSettings{
		Subtitle:    "Your personal AI assistant",
		Placeholder: "Type your message...",
	}
}

// AddFlags registers the persistent flags shared by all commands.
func AddFlags(fs *pflag.FlagSet) {
	w := DefaultWidget()
	fs.String("config", "", "Path to a YAML config file (default $HOME/.twin/config.yaml)")
	fs.String("api-url", chatclient.DefaultBaseURL, "Base URL of the chat service")
	fs.Duration("request-timeout", 0, "Timeout for one chat request (0 = none)")
	fs.String("owner", w.Owner, "Name of the person the twin stands in for")
	fs.String("title", w.Title, "Widget title (default derived from --owner)")
	fs.String("subtitle", w.Subtitle, "Widget subtitle")
	fs.String("placeholder", w.Placeholder, "Input placeholder text")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", logging.FormatConsole, "Log format (console, json)")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
	fs.Bool("with-caller", false, "Include caller file and line in logs")
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to load env file")
		}
	}
}

// NewViper binds fs and the TWIN_* environment to a fresh viper instance
// and reads the config file, if any.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api-url", EnvPrefix+"_API_URL", "API_URL"); err != nil {
		return nil, errors.Wrap(err, "failed to bind api-url env")
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrap(err, "failed to bind flags")
		}
	}

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+AppName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	} else {
		log.Debug().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
	}

	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		APIURL: chatclient.DefaultBaseURL,
		Widget: DefaultWidget(),
		Log:    logging.Settings{Level: "info", Format: logging.FormatConsole},
	}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.APIURL == "" {
		s.APIURL = chatclient.DefaultBaseURL
	}
	u, err := url.Parse(s.APIURL)
	if err != nil {
		return errors.Wrapf(err, "invalid api-url %q", s.APIURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("api-url %q must be an absolute http(s) URL", s.APIURL)
	}
	if s.RequestTimeout < 0 {
		return errors.Errorf("request-timeout must not be negative, got %s", s.RequestTimeout)
	}
	return nil
}
