package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath            = "rftgrader.yaml"
	DefaultReferenceAnswer = "fuzzy wuzzy had no hair"
	DefaultModelSample     = "fuzzy wuzzy was a bear"
)

type Config struct {
	API     API     `yaml:"api"`
	Secrets Secrets `yaml:"secrets"`
	Grader  Grader  `yaml:"grader"`
	Eval    Eval    `yaml:"eval"`
	Rollout Rollout `yaml:"rollout"`
	Sandbox Sandbox `yaml:"sandbox"`
	Results Results `yaml:"results"`
}

type API struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	KeyEnv  string `yaml:"key_env" validate:"required"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Grader selects the scorer and the sample sent to the run endpoint.
type Grader struct {
	Scorer          string `yaml:"scorer" validate:"required"`
	ReferenceAnswer string `yaml:"reference_answer"`
	ModelSample     string `yaml:"model_sample"`
}

type Eval struct {
	Dataset     string  `yaml:"dataset"`
	Parallel    int     `yaml:"parallel" validate:"gte=1"`
	Threshold   float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	Aggregation string  `yaml:"aggregation" validate:"oneof=mean"`
}

type Rollout struct {
	Processor   string  `yaml:"processor" validate:"oneof=noop chat"`
	Model       string  `yaml:"model" validate:"required_if=Processor chat"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

type Sandbox struct {
	Image          string `yaml:"image" validate:"required"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1"`
}

type Results struct {
	Dir     string `yaml:"dir" validate:"required"`
	Pricing string `yaml:"pricing"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and explicit is false.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return Load(path)
}

// LoadSecrets exports the variables of the configured env file. Variables
// already present in the environment win.
func (c *Config) LoadSecrets() error {
	if c.Secrets.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(c.Secrets.EnvFile); err != nil {
		return fmt.Errorf("loading secrets %s: %w", c.Secrets.EnvFile, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.API.KeyEnv == "" {
		cfg.API.KeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Grader.Scorer == "" {
		cfg.Grader.Scorer = "rapidfuzz"
	}
	if cfg.Grader.ReferenceAnswer == "" {
		cfg.Grader.ReferenceAnswer = DefaultReferenceAnswer
	}
	if cfg.Grader.ModelSample == "" {
		cfg.Grader.ModelSample = DefaultModelSample
	}
	if cfg.Eval.Parallel == 0 {
		cfg.Eval.Parallel = 1
	}
	if cfg.Eval.Aggregation == "" {
		cfg.Eval.Aggregation = "mean"
	}
	if cfg.Rollout.Processor == "" {
		cfg.Rollout.Processor = "noop"
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = "python:3.12-slim"
	}
	if cfg.Sandbox.TimeoutSeconds == 0 {
		cfg.Sandbox.TimeoutSeconds = 300
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate re-checks cfg, for callers that change it after Load.
func (c *Config) Validate() error {
	return validate(c)
}

func validate(cfg *Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
