package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/joelkehle/prior-art-engine/internal/priorartsearch"
	"github.com/joelkehle/prior-art-engine/internal/render"
)

const (
	EnvPrefix      = "PRIOR_ART"
	ConfigBaseName = "prior-art"

	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	ScorerLLM     = "llm"
	ScorerKeyword = "keyword"
)

type LLM struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// ReportTimeout applies to the single report call, which writes far more
	// text than the others.
	ReportTimeout time.Duration `mapstructure:"report_timeout"`
}

type PatentsView struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type Search struct {
	MaxResults       int                `mapstructure:"max_results"`
	Threshold        float64            `mapstructure:"threshold"`
	BatchSize        int                `mapstructure:"batch_size"`
	Budget           time.Duration      `mapstructure:"budget"`
	Scorer           string             `mapstructure:"scorer"`
	DomainThresholds map[string]float64 `mapstructure:"-"`
}

type Store struct {
	Path     string        `mapstructure:"path"`
	ClaimTTL time.Duration `mapstructure:"claim_ttl"`
}

// Render holds the PDF print settings. Margin is in inches.
type Render struct {
	ChromePath string        `mapstructure:"chrome_path"`
	Paper      string        `mapstructure:"paper"`
	Margin     float64       `mapstructure:"margin"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (r Render) PDFOptions() render.PDFOptions {
	return render.PDFOptions{ChromePath: r.ChromePath, Paper: r.Paper, Margin: r.Margin, Timeout: r.Timeout}
}

type Telemetry struct {
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

type Config struct {
	LogLevel    string      `mapstructure:"log_level"`
	LLM         LLM         `mapstructure:"llm"`
	PatentsView PatentsView `mapstructure:"patentsview"`
	Search      Search      `mapstructure:"search"`
	Store       Store       `mapstructure:"store"`
	Render      Render      `mapstructure:"render"`
	Telemetry   Telemetry   `mapstructure:"telemetry"`
}

// LoadEnv loads .env and .env.dev from the working directory when present.
// Values already set in the process environment win.
func LoadEnv(logger logrus.FieldLogger) {
	loaded := []string{}
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("loaded env files: %s", strings.Join(loaded, ", "))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("llm.provider", ProviderAnthropic)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", priorartsearch.DefaultLLMTimeout)
	v.SetDefault("llm.report_timeout", 4*priorartsearch.DefaultLLMTimeout)
	v.SetDefault("patentsview.base_url", priorartsearch.PatentsViewBaseURL)
	v.SetDefault("patentsview.api_key", "")
	v.SetDefault("patentsview.min_interval", priorartsearch.DefaultMinRequestInterval)
	v.SetDefault("patentsview.request_timeout", priorartsearch.DefaultRequestTimeout)
	v.SetDefault("patentsview.max_retries", 2)
	v.SetDefault("search.max_results", priorartsearch.DefaultMaxResults)
	v.SetDefault("search.threshold", priorartsearch.DefaultRelevanceThreshold)
	v.SetDefault("search.batch_size", priorartsearch.DefaultBatchSize)
	v.SetDefault("search.budget", priorartsearch.DefaultSearchBudget)
	v.SetDefault("search.scorer", ScorerLLM)
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.claim_ttl", 30*24*time.Hour)
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.paper", render.DefaultPaper)
	v.SetDefault("render.margin", render.DefaultMargin)
	v.SetDefault("render.timeout", render.DefaultPDFTimeout)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.metrics_textfile", "")
}

func defaultStorePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "prior-art", "runs.db")
	}
	return "prior-art.db"
}

// New returns a viper instance reading PRIOR_ART_* variables and, if
// configFile is empty, an optional prior-art.yaml in the working directory
// or ~/.config/prior-art.
func New(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigBaseName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "prior-art"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed provider variables are accepted as fallbacks.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("patentsview.api_key", EnvPrefix+"_PATENTSVIEW_API_KEY", "PATENTSVIEW_API_KEY")
	return v
}

// Load reads the config file if one is found and decodes the merged
// settings. A missing default config file is not an error; a missing
// explicit one is.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	thresholds, err := domainThresholds(v.Get("search.domain_thresholds"))
	if err != nil {
		return Config{}, err
	}
	cfg.Search.DomainThresholds = thresholds
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Search.Scorer = strings.ToLower(strings.TrimSpace(cfg.Search.Scorer))
	cfg.Render.Paper = strings.ToLower(strings.TrimSpace(cfg.Render.Paper))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// domainThresholds accepts a YAML mapping or an env string of the form
// "AI_ML=0.6,ROBOTICS=0.45".
func domainThresholds(raw any) (map[string]float64, error) {
	out := map[string]float64{}
	switch t := raw.(type) {
	case nil:
		return out, nil
	case string:
		for _, pair := range strings.Split(t, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, val, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("domain threshold %q: expected DOMAIN=value", pair)
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, fmt.Errorf("domain threshold %q: %w", pair, err)
			}
			out[strings.TrimSpace(k)] = f
		}
	case map[string]any:
		for k, val := range t {
			f, err := toFloat(val)
			if err != nil {
				return nil, fmt.Errorf("domain threshold %q: %w", k, err)
			}
			out[k] = f
		}
	default:
		return nil, fmt.Errorf("domain thresholds: unsupported value %T", raw)
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderAnthropic, ProviderOpenAI, c.LLM.Provider))
	}
	switch c.Search.Scorer {
	case ScorerLLM, ScorerKeyword:
	default:
		errs = append(errs, fmt.Errorf("search.scorer must be %q or %q, got %q", ScorerLLM, ScorerKeyword, c.Search.Scorer))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		errs = append(errs, fmt.Errorf("search.threshold must be within [0,1], got %v", c.Search.Threshold))
	}
	if c.Search.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("search.batch_size must be positive, got %d", c.Search.BatchSize))
	}
	for domain, v := range c.Search.DomainThresholds {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("search.domain_thresholds.%s must be within [0,1], got %v", domain, v))
		}
	}
	if c.PatentsView.MinInterval < 0 {
		errs = append(errs, errors.New("patentsview.min_interval must not be negative"))
	}
	if c.PatentsView.MaxRetries < 0 {
		errs = append(errs, errors.New("patentsview.max_retries must not be negative"))
	}
	if strings.TrimSpace(c.PatentsView.BaseURL) == "" {
		errs = append(errs, errors.New("patentsview.base_url is required"))
	}
	if err := c.Render.PDFOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("render: %w", err))
	}
	return errors.Join(errs...)
}

// Thresholds builds the engine's threshold table from the configured
// default and domain overrides.
func (c Config) Thresholds() priorartsearch.ThresholdTable {
	return priorartsearch.NewThresholdTable(c.Search.Threshold, c.Search.DomainThresholds)
}
