package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/stepwise/internal/providers"
)

// Config holds all stepwise configuration.
// Priority: STEPWISE_* env vars > stepwise.yaml > defaults.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	DBPath       string `mapstructure:"db_path"`
	WorkflowsDir string `mapstructure:"workflows_dir"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	HTTP struct {
		Timeout          time.Duration `mapstructure:"timeout"`
		MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
		MaxRedirects     int           `mapstructure:"max_redirects"`
	} `mapstructure:"http"`

	LLM struct {
		BaseURL string        `mapstructure:"base_url"`
		APIKey  string        `mapstructure:"api_key"`
		Model   string        `mapstructure:"model"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`

	FS struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"fs"`

	MCP struct {
		Servers map[string]providers.MCPServerConfig `mapstructure:"servers"`
	} `mapstructure:"mcp"`

	Engine struct {
		MaxDepth int `mapstructure:"max_depth"`
	} `mapstructure:"engine"`

	Scheduler struct {
		Enabled     bool          `mapstructure:"enabled"`
		Tick        time.Duration `mapstructure:"tick"`
		Concurrency int           `mapstructure:"concurrency"`
	} `mapstructure:"scheduler"`
}

func stepwiseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepwise"
	}
	return filepath.Join(home, ".stepwise")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", stepwiseDir())
	v.SetDefault("db_path", "")
	v.SetDefault("workflows_dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_response_bytes", 10*1024*1024)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("fs.root", ".")
	v.SetDefault("mcp.servers", map[string]any{})
	v.SetDefault("engine.max_depth", 32)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", 30*time.Second)
	v.SetDefault("scheduler.concurrency", 4)
}

// loadConfig reads configuration. An explicit path must exist; otherwise
// stepwise.yaml is looked up in the working directory and then in
// ~/.stepwise, and a missing file is not an error.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stepwise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(stepwiseDir())
	}

	v.SetEnvPrefix("STEPWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "stepwise.db")
	}
	return &cfg, nil
}
