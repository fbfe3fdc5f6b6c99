// Package config collects server settings from the environment and the
// optional difficulty overrides file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/songle-game/songle-server/internal/difficulty"
)

// Config is the resolved server configuration.
type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	LogFormat      string
	SongsBaseURL   string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	Production     bool
	DifficultyFile string
	PingInterval   time.Duration
	FetchTimeout   time.Duration
	AutoCollect    bool

	Difficulties difficulty.Table
}

// DefaultSongsBaseURL hosts the song documents.
const DefaultSongsBaseURL = "http://www.inf.ed.ac.uk/teaching/courses/selp/data/songs"

// FromEnv reads the environment. Call godotenv.Load before it to pick up a
// .env file. Difficulties are the built-in table merged with
// DIFFICULTY_FILE when that file exists.
func FromEnv() (Config, error) {
	c := Config{
		Port:           getEnv("PORT", "5175"),
		DBPath:         getEnv("DB_PATH", "./data/songle.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		SongsBaseURL:   strings.TrimRight(getEnv("SONGS_BASE_URL", DefaultSongsBaseURL), "/"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		CookieName:     getEnv("COOKIE_NAME", "songle_token"),
		ClientOrigin:   os.Getenv("CLIENT_ORIGIN"),
		Production:     os.Getenv("NODE_ENV") == "production",
		DifficultyFile: getEnv("DIFFICULTY_FILE", "./difficulty.toml"),
	}

	var err error
	if c.JWTExpiresDays, err = strconv.Atoi(getEnv("JWT_EXPIRES_DAYS", "7")); err != nil || c.JWTExpiresDays <= 0 {
		return Config{}, fmt.Errorf("JWT_EXPIRES_DAYS: want a positive integer, got %q", os.Getenv("JWT_EXPIRES_DAYS"))
	}
	if c.PingInterval, err = time.ParseDuration(getEnv("PING_INTERVAL", "15s")); err != nil {
		return Config{}, fmt.Errorf("PING_INTERVAL: %w", err)
	}
	if c.FetchTimeout, err = time.ParseDuration(getEnv("FETCH_TIMEOUT", "20s")); err != nil {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT: %w", err)
	}
	if c.AutoCollect, err = strconv.ParseBool(getEnv("AUTO_COLLECT", "false")); err != nil {
		return Config{}, fmt.Errorf("AUTO_COLLECT: %w", err)
	}

	file, err := LoadDifficultyFile(c.DifficultyFile)
	if err != nil {
		return Config{}, err
	}
	if c.Difficulties, err = file.Apply(difficulty.Default()); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
