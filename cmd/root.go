package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobrater/internal/ai/gemini"
	"github.com/spigell/jobrater/internal/lock"
	"github.com/spigell/jobrater/internal/runner"
)

const (
	app = "jobrater"
)

type Config struct {
	Database *DatabaseConfig `mapstructure:"database"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	Scraper  *ScraperConfig  `mapstructure:"scraper"`
	AI       *AIConfig       `mapstructure:"ai"`
	Schedule *ScheduleConfig `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockTTL time.Duration `mapstructure:"lock-ttl"`
}

type ScraperConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AIConfig struct {
	Provider        string        `mapstructure:"provider"`
	MinInterval     time.Duration `mapstructure:"min-interval"`
	MaxOutputTokens int           `mapstructure:"max-output-tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxLogLength    int           `mapstructure:"max-log-length"`
	Gemini          *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type ScheduleConfig struct {
	Every        time.Duration `mapstructure:"every"`
	RefreshAfter time.Duration `mapstructure:"refresh-after"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobrater scrapes job postings for saved searches and rates them against resumes",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	envs := map[string]string{
		"database.url":           "DATABASE_URL",
		"redis.url":              "REDIS_URL",
		"scraper.url":            "JOBSPY_URL",
		"scraper.api-key":        "JOBSPY_API_KEY",
		"ai.gemini.api-key":      "GEMINI_API_KEY",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobrater.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("redis.lock-ttl", lock.DefaultTTL)
	viper.SetDefault("scraper.timeout", 2*time.Minute)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.min-interval", 21*time.Second)
	viper.SetDefault("ai.max-output-tokens", gemini.DefaultTokenLimit)
	viper.SetDefault("ai.temperature", gemini.DefaultTemperature)
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("schedule.every", time.Hour)
	viper.SetDefault("schedule.refresh-after", runner.DefaultRefreshAfter)
}

func initConfig() {
	// Variables already present in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional: everything can come from the environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}
