package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	BackupDir          string
	CharactersFile     string
	StatusFile         string
	CharacterThreshold int
	StartMarker        string
	EndMarker          string
	Workers            int
	Port               int
	LogLevel           string
	DatabaseURL        string
	NatsURL            string
	NatsToken          string
	SlackBotToken      string
	SlackChannel       string
	APIToken           string
	WatchExports       bool
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	backup := envStr("SCENEWRIGHT_BACKUP_DIR", "./backup")
	return Config{
		BackupDir:          backup,
		CharactersFile:     envStr("SCENEWRIGHT_CHARACTERS_FILE", filepath.Join(backup, "character_ids.json")),
		StatusFile:         envStr("SCENEWRIGHT_STATUS_FILE", filepath.Join(backup, "scene_status.json")),
		CharacterThreshold: envInt("SCENEWRIGHT_CHARACTER_THRESHOLD", 1000),
		StartMarker:        envStr("SCENEWRIGHT_START_MARKER", `(?i)^\s*\[\s*scene\s*start`),
		EndMarker:          envStr("SCENEWRIGHT_END_MARKER", `(?i)^\s*\[\s*scene\s*end`),
		Workers:            envInt("SCENEWRIGHT_WORKERS", 4),
		Port:               envInt("SCENEWRIGHT_PORT", 8760),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		NatsURL:            envStr("NATS_URL", ""),
		NatsToken:          envStr("NATS_TOKEN", ""),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:       envStr("SLACK_REVIEW_CHANNEL", ""),
		APIToken:           envStr("SCENEWRIGHT_API_TOKEN", ""),
		WatchExports:       envBool("SCENEWRIGHT_WATCH_EXPORTS", true),
	}
}

// WithBackupDir points the config at another backup root. Paths derived from
// the root follow it unless set explicitly in the environment.
func (c Config) WithBackupDir(dir string) Config {
	c.BackupDir = dir
	c.CharactersFile = envStr("SCENEWRIGHT_CHARACTERS_FILE", filepath.Join(dir, "character_ids.json"))
	c.StatusFile = envStr("SCENEWRIGHT_STATUS_FILE", filepath.Join(dir, "scene_status.json"))
	return c
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
