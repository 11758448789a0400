package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChatConfig holds completion engine settings. It is passed explicitly
// into the message logic so tests can inject fixtures.
type ChatConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	SystemMessage string  `yaml:"system_message"`
	Temperature   float32 `yaml:"temperature"`
	TopP          float32 `yaml:"top_p"`
	MaxTokens     uint32  `yaml:"max_tokens"`
	Stream        bool    `yaml:"stream"`
	MaxToolDepth  int     `yaml:"max_tool_depth"`
}

// SearchConfig holds the search-augmentation service settings.
type SearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// FrontendConfig is exposed verbatim on /frontend_settings.
type FrontendConfig struct {
	Title           string `yaml:"title" json:"title"`
	ChatTitle       string `yaml:"chat_title" json:"chat_title"`
	ChatDescription string `yaml:"chat_description" json:"chat_description"`
	ShowShareButton bool   `yaml:"show_share_button" json:"show_share_button"`
	SanitizeAnswer  bool   `yaml:"sanitize_answer" json:"sanitize_answer"`
}

// Config holds the application configuration
type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		Port     string `yaml:"port"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
	Search   SearchConfig   `yaml:"search"`
	Frontend FrontendConfig `yaml:"frontend"`
	Server   struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

const (
	defaultSystemMessage = "You are an AI assistant that helps people find information."
	defaultMaxTokens     = 1024
	defaultMaxToolDepth  = 3
)

// DSN generates the PostgreSQL DSN from database config
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Database.Host,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.Port,
		c.Database.SSLMode,
	)
}

// Load reads and parses the YAML configuration file
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chat.SystemMessage == "" {
		c.Chat.SystemMessage = defaultSystemMessage
	}
	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = defaultMaxTokens
	}
	if c.Chat.MaxToolDepth == 0 {
		c.Chat.MaxToolDepth = defaultMaxToolDepth
	}
	if c.Frontend.Title == "" {
		c.Frontend.Title = "DeepAMARIS"
	}
	if c.Frontend.ChatTitle == "" {
		c.Frontend.ChatTitle = "Start chatting"
	}
	if c.Frontend.ChatDescription == "" {
		c.Frontend.ChatDescription = "This chatbot is configured to answer your questions"
	}
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("database.password is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.SSLMode == "" {
		return fmt.Errorf("database.sslmode is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.base_url is required")
	}
	if c.Chat.APIKey == "" {
		return fmt.Errorf("chat.api_key is required")
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("chat.model is required")
	}
	if c.Search.Enabled && c.Search.Endpoint == "" {
		return fmt.Errorf("search.endpoint is required when search is enabled")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
