package store

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
	ModeRunOnce     = "run_once"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerConfig   `yaml:"broker"`
	Client   ClientConfig   `yaml:"client"`
	LLM      LLMConfig      `yaml:"llm"`
	Research ResearchConfig `yaml:"research"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"127.0.0.1" validate:"required"`
	Port int    `yaml:"port" default:"5000" validate:"gt=0,lt=65536"`
	// run_once stops the server shortly after the first successful login.
	Mode              string        `yaml:"mode" default:"development" validate:"oneof=development production run_once"`
	ShutdownDelay     time.Duration `yaml:"shutdown_delay" default:"3s" validate:"gte=0"`
	ExposeCredentials bool          `yaml:"expose_credentials"`
	OpenBrowser       bool          `yaml:"open_browser" default:"true"`
}

type BrokerConfig struct {
	APIKey    string        `yaml:"api_key" secret:"true"`
	APISecret string        `yaml:"api_secret" secret:"true"`
	BaseURI   string        `yaml:"base_uri" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" default:"7s" validate:"gt=0"`
}

type ClientConfig struct {
	BaseURL     string `yaml:"base_url" default:"http://127.0.0.1:5000" validate:"required,url"`
	OpenBrowser bool   `yaml:"open_browser" default:"true"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" default:"RULES" validate:"oneof=RULES OPENAI CLAUDE"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	MaxTokens   int     `yaml:"max_tokens" default:"1024" validate:"gt=0"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxSteps    int     `yaml:"max_steps" default:"8" validate:"gt=0,lte=32"`
}

type ResearchConfig struct {
	Provider      string        `yaml:"provider" default:"news" validate:"oneof=news brave"`
	MaxResults    int           `yaml:"max_results" default:"5" validate:"gt=0,lte=10"`
	FetchArticles int           `yaml:"fetch_articles" default:"2" validate:"gte=0,lte=5"`
	CacheTTL      time.Duration `yaml:"cache_ttl" default:"15m" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
	BraveAPIKey   string        `yaml:"brave_api_key" secret:"true"`
}

// RunOnce reports whether the server should stop after the first login.
func (c *Config) RunOnce() bool {
	return c.Server.Mode == ModeRunOnce
}

// Addr is the listen address of the proxy.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the structural rules on every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Research.Provider == "brave" && c.Research.BraveAPIKey == "" {
		return errors.New("research.provider brave requires BRAVE_API_KEY")
	}
	return nil
}

// RequireBroker checks the credentials needed to talk to Kite.
func (c *Config) RequireBroker() error {
	if c.Broker.APIKey == "" {
		return errors.New("ZERODHA_API_KEY is not set")
	}
	if c.Broker.APISecret == "" {
		return errors.New("ZERODHA_API_SECRET is not set")
	}
	return nil
}

// Default returns a config holding only default values.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic("failed to set config defaults: " + err.Error())
	}
	return &c
}

// LoadConfig reads path on top of the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Broker.APIKey, "ZERODHA_API_KEY")
	setString(&c.Broker.APISecret, "ZERODHA_API_SECRET")
	setString(&c.Server.Mode, "SERVER_MODE")
	setString(&c.Client.BaseURL, "KITE_PROXY_URL")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.Research.Provider, "RESEARCH_PROVIDER")
	setString(&c.Research.BraveAPIKey, "BRAVE_API_KEY")
	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
		if os.Getenv("KITE_PROXY_URL") == "" {
			c.Client.BaseURL = "http://" + c.Addr()
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// String returns a representation of the config with secret fields redacted.
func (c *Config) String() string {
	var sb strings.Builder
	writeRedacted(&sb, reflect.ValueOf(*c))
	return sb.String()
}

func writeRedacted(sb *strings.Builder, v reflect.Value) {
	t := v.Type()
	sb.WriteString("{")
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		field := t.Field(i)
		sb.WriteString(field.Name + ": ")
		fv := v.Field(i)
		switch {
		case field.Tag.Get("secret") == "true":
			if fv.String() == "" {
				sb.WriteString("<unset>")
			} else {
				sb.WriteString("***REDACTED***")
			}
		case fv.Kind() == reflect.Struct:
			writeRedacted(sb, fv)
		default:
			fmt.Fprintf(sb, "%v", fv.Interface())
		}
	}
	sb.WriteString("}")
}
