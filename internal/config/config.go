package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// DSN for the Postgres record store. Empty means records are kept
	// in memory only and do not survive a restart.
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type StorageConfig struct {
	// DataDir holds the originals/ and thumbs/ subdirectories.
	DataDir string `yaml:"dataDir"`
}

type UploadConfig struct {
	MaxSizeBytes int `yaml:"maxSizeBytes"`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	// JobTimeoutMs force-fails a pipeline task that runs longer than
	// this. Zero disables the timeout.
	JobTimeoutMs int `yaml:"jobTimeoutMs"`
}

type ThumbnailsConfig struct {
	SmallQuality  int `yaml:"smallQuality"`
	MediumQuality int `yaml:"mediumQuality"`
}

type OpenAICaptionConfig struct {
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseURL"`
	Model     string `yaml:"model"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

type CaptionConfig struct {
	Provider string              `yaml:"provider"`
	OpenAI   OpenAICaptionConfig `yaml:"openai"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Upload     UploadConfig     `yaml:"upload"`
	Worker     WorkerConfig     `yaml:"worker"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Caption    CaptionConfig    `yaml:"caption"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}

	return &cfg
}
