// Package config loads autoheal.yaml. Values are read with koanf from the
// file, overlaid with AUTOHEAL_* environment variables, and checked with
// validator struct tags plus the rollout rules in deploy.Config.Validate.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/autoheal/internal/browser"
	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/provider"
	"github.com/felixgeelhaar/autoheal/internal/server"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "autoheal.yaml"

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: AUTOHEAL_ORACLE__MODEL sets oracle.model.
const EnvPrefix = "AUTOHEAL_"

// Config is the full autoheal configuration.
type Config struct {
	Log       LogConfig          `koanf:"log" yaml:"log"`
	Platform  string             `koanf:"platform" yaml:"platform" validate:"required"`
	Oracle    provider.Config    `koanf:"oracle" yaml:"oracle"`
	Prompt    PromptConfig       `koanf:"prompt" yaml:"prompt"`
	Browser   browser.Config     `koanf:"browser" yaml:"browser"`
	Diagnosis DiagnosisConfig    `koanf:"diagnosis" yaml:"diagnosis"`
	Tests     eval.CommandConfig `koanf:"tests" yaml:"tests"`
	Deploy    deploy.Config      `koanf:"deploy" yaml:"deploy"`
	Monitor   EndpointConfig     `koanf:"monitor" yaml:"monitor"`
	Executor  EndpointConfig     `koanf:"executor" yaml:"executor"`
	Store     StoreConfig        `koanf:"store" yaml:"store"`
	Patches   PatchConfig        `koanf:"patches" yaml:"patches"`
	Server    server.Config      `koanf:"server" yaml:"server"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}

// Logger builds the process logger.
func (c LogConfig) Logger() *log.Logger {
	return log.New(log.FromSettings(c.Level, c.Format))
}

// PromptConfig bounds the fix request prompt.
type PromptConfig struct {
	DOMBudget  int  `koanf:"dom_budget" yaml:"dom_budget" validate:"gte=0"`
	KeepRawDOM bool `koanf:"keep_raw_dom" yaml:"keep_raw_dom"`
}

// DiagnosisConfig controls what the diagnoser captures and how it grades
// severity.
type DiagnosisConfig struct {
	Selectors       []string `koanf:"selectors" yaml:"selectors"`
	MaxHTMLLength   int      `koanf:"max_html_length" yaml:"max_html_length" validate:"gte=0"`
	ConsoleCapacity int      `koanf:"console_capacity" yaml:"console_capacity" validate:"gte=0"`
	NetworkCapacity int      `koanf:"network_capacity" yaml:"network_capacity" validate:"gte=0"`
	CriticalRatio   float64  `koanf:"critical_ratio" yaml:"critical_ratio" validate:"gte=0,lte=1"`
	HighRatio       float64  `koanf:"high_ratio" yaml:"high_ratio" validate:"gte=0,lte=1"`
}

// EndpointConfig addresses the platform's health or rollout service.
type EndpointConfig struct {
	URL     string        `koanf:"url" yaml:"url" validate:"omitempty,url"`
	Token   string        `koanf:"token" yaml:"token,omitempty"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`
}

// StoreConfig locates the deployment database.
type StoreConfig struct {
	Path string `koanf:"path" yaml:"path" validate:"required"`
}

// PatchConfig locates saved patch sets.
type PatchConfig struct {
	Dir string `koanf:"dir" yaml:"dir" validate:"required"`
}

// Default returns a working configuration for a local node test setup.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Platform: "default",
		Oracle:   provider.DefaultConfig(),
		Prompt:   PromptConfig{DOMBudget: 8000},
		Browser:  browser.Config{Stealth: true, NavigateTimeout: 30 * time.Second},
		Diagnosis: DiagnosisConfig{
			ConsoleCapacity: 200,
			NetworkCapacity: 200,
			MaxHTMLLength:   5000,
			CriticalRatio:   0.5,
			HighRatio:       0.2,
		},
		Tests: eval.CommandConfig{
			Command:     []string{"node", "--test", eval.FilePlaceholder},
			Timeout:     eval.DefaultTestTimeout,
			Parallelism: eval.DefaultParallelism,
			Extension:   eval.DefaultTestExtension,
		},
		Deploy:   deploy.DefaultConfig(),
		Monitor:  EndpointConfig{Timeout: 10 * time.Second},
		Executor: EndpointConfig{Timeout: 30 * time.Second},
		Store:    StoreConfig{Path: ".autoheal/autoheal.db"},
		Patches:  PatchConfig{Dir: ".autoheal/patches"},
		Server:   server.Config{Address: ":8080"},
	}
}

// listKeys are replaced, not merged, when the file or environment sets them.
var listKeys = map[string]func(*Config){
	"deploy.stages":       func(c *Config) { c.Deploy.Stages = nil },
	"tests.command":       func(c *Config) { c.Tests.Command = nil },
	"tests.env":           func(c *Config) { c.Tests.Env = nil },
	"diagnosis.selectors": func(c *Config) { c.Diagnosis.Selectors = nil },
}

// Load reads path over Default and applies environment overrides. An empty
// path reads DefaultPath when it exists. The result is validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		switch {
		case stderrors.Is(err, os.ErrNotExist) && !explicit:
		case stderrors.Is(err, os.ErrNotExist):
			return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", path)).
				WithSuggestion("Run 'autoheal config init' to create one")
		default:
			return nil, errors.NewFileUnmarshalError(path, "YAML", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to read environment overrides", err)
	}

	cfg := Default()
	for key, reset := range listKeys {
		if k.Exists(key) {
			reset(cfg)
		}
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, then the rollout ordering rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.NewConfigInvalidError(strings.Join(msgs, "; "))
		}
		return errors.NewConfigInvalidError(err.Error())
	}
	if err := c.Deploy.Validate(); err != nil {
		return errors.NewConfigInvalidError("deploy: " + err.Error())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s fails %s", field, fe.Tag())
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yamlv3.Marshal(c)
}

// WriteDefault writes Default to path. It refuses to overwrite an existing
// file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s already exists", path)).
				WithSuggestion("Pass --force to overwrite it")
		}
	}
	data, err := Default().Marshal()
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
