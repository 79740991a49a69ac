package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefisso delle variabili d'ambiente
const EnvPrefix = "SMARTWATCHER"

// Config rappresenta la configurazione completa dell'applicazione
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Documents  DocumentsConfig  `mapstructure:"documents" yaml:"documents"`
	Personas   PersonasConfig   `mapstructure:"personas" yaml:"personas"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	UI         UIConfig         `mapstructure:"ui" yaml:"ui"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
}

// ServerConfig configurazione del server
type ServerConfig struct {
	Port         int           `mapstructure:"port" yaml:"port"`
	Host         string        `mapstructure:"host" yaml:"host"`
	RunTimeout   time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// LLMConfig configurazione del model backend
type LLMConfig struct {
	// Model nel formato "provider/model", es. "gemini/gemini-2.5-pro"
	Model           string        `mapstructure:"model" yaml:"model"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	MaxToolRounds   int           `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SearchConfig configurazione della capability di ricerca web
type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	MaxResults int           `mapstructure:"max_results" yaml:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// DocumentsConfig configurazione della capability di lettura documenti
type DocumentsConfig struct {
	BaseDir        string `mapstructure:"base_dir" yaml:"base_dir"`
	GuidelinesPath string `mapstructure:"guidelines_path" yaml:"guidelines_path"`
}

// PersonasConfig configurazione del catalogo delle persona
type PersonasConfig struct {
	// File YAML opzionale che sostituisce il catalogo di default
	File string `mapstructure:"file" yaml:"file"`
}

// CacheConfig configurazione del cache dei risultati di ricerca
type CacheConfig struct {
	Backend    string      `mapstructure:"backend" yaml:"backend"` // "memory" o "redis"
	MaxEntries int         `mapstructure:"max_entries" yaml:"max_entries"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configurazione Redis
type RedisConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// UIConfig configurazione della pagina web
type UIConfig struct {
	Title       string `mapstructure:"title" yaml:"title"`
	DefaultPost string `mapstructure:"default_post" yaml:"default_post"`
}

// MonitoringConfig configurazione monitoring
type MonitoringConfig struct {
	Prometheus struct {
		Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
		Namespace string `mapstructure:"namespace" yaml:"namespace"`
	} `mapstructure:"prometheus" yaml:"prometheus"`
	Logging struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"logging" yaml:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
		Stdout       bool   `mapstructure:"stdout" yaml:"stdout"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
		ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
	} `mapstructure:"tracing" yaml:"tracing"`
}

// Load carica la configurazione da file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindSecretEnv(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// An explicit path that does not exist is an error; the search
			// paths are optional.
			if configPath != "" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Model)
	}

	return &cfg, nil
}

// providerKeyEnv elenca, per provider, le variabili storiche della credenziale del modello
var providerKeyEnv = map[string][]string{
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai": {"OPENAI_API_KEY"},
}

// providerKeyFromEnv legge la credenziale solo dalle variabili del provider
// indicato dal prefisso di model, mai da quelle di un altro provider
func providerKeyFromEnv(model string) string {
	name, _, ok := strings.Cut(strings.TrimSpace(model), "/")
	if !ok {
		return ""
	}
	for _, env := range providerKeyEnv[strings.ToLower(name)] {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return ""
}

// bindSecretEnv collega le credenziali anche ai nomi di variabile storici
func bindSecretEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY")
	_ = v.BindEnv("search.api_key", EnvPrefix+"_SEARCH_API_KEY", "SERPER_API_KEY")
	_ = v.BindEnv("cache.redis.password", EnvPrefix+"_CACHE_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// setDefaults imposta i valori di default
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.run_timeout", "10m")
	v.SetDefault("server.allow_origins", []string{"*"})

	// LLM defaults
	v.SetDefault("llm.model", "gemini/gemini-2.5-pro")
	v.SetDefault("llm.temperature", 0.6)
	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.max_output_tokens", 2048)
	v.SetDefault("llm.max_tool_rounds", 5)
	v.SetDefault("llm.step_timeout", "3m")
	v.SetDefault("llm.request_timeout", "2m")

	// Search defaults
	v.SetDefault("search.endpoint", "https://google.serper.dev/search")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("search.cache_ttl", "30m")

	// Documents defaults
	v.SetDefault("documents.base_dir", "./configs")
	v.SetDefault("documents.guidelines_path", "guidelines.md")

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.redis.host", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "smartwatcher:")

	// UI defaults
	v.SetDefault("ui.title", "Smart Watcher - 社群公關智囊團")
	v.SetDefault("ui.default_post", "最近科技股震盪，尤其是網通晶片。像 MRVL 這種 ASIC 概念股，大家覺得現在的位階還可以佈局嗎？想聽聽高手的看法。")

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.namespace", "smartwatcher")
	v.SetDefault("monitoring.logging.level", "info")
	v.SetDefault("monitoring.logging.format", "json")
	v.SetDefault("monitoring.tracing.enabled", false)
	v.SetDefault("monitoring.tracing.stdout", false)
	v.SetDefault("monitoring.tracing.otlp_endpoint", "")
	v.SetDefault("monitoring.tracing.service_name", "smartwatcher")
}

// Validate valida la configurazione
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("invalid llm temperature: %.2f (expected 0.0-1.0)", c.LLM.Temperature)
	}

	if c.LLM.MaxToolRounds < 0 {
		return fmt.Errorf("invalid llm.max_tool_rounds: %d", c.LLM.MaxToolRounds)
	}

	if c.LLM.StepTimeout < 0 || c.Server.RunTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Search.MaxResults < 1 {
		return fmt.Errorf("invalid search.max_results: %d", c.Search.MaxResults)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache backend: %q (expected memory or redis)", c.Cache.Backend)
	}

	if c.Personas.File != "" {
		if _, err := os.Stat(c.Personas.File); os.IsNotExist(err) {
			return fmt.Errorf("personas file not found: %s", c.Personas.File)
		}
	}

	return nil
}

// Redacted restituisce una copia con le credenziali mascherate
func (c *Config) Redacted() Config {
	out := *c
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Search.APIKey = mask(c.Search.APIKey)
	out.Cache.Redis.Password = mask(c.Cache.Redis.Password)
	return out
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****" + secret[len(secret)-2:]
	}
}
