package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string

	// HubURL is the base URL of the hub that runs the remote tasks and
	// exposes the live channel (capability probe, token mint, websocket).
	HubURL string

	// WebDir, when set, is served as a static dashboard at "/".
	WebDir string

	MaxRetries     int
	RetryDelay     time.Duration
	ReconnectDelay time.Duration
	BufferInterval time.Duration
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("TASKFEED_DATA_DIR", "data")
	return Config{
		HTTPAddr: getEnv("TASKFEED_HTTP_ADDR", ":8090"),
		DataDir:  dataDir,
		DBPath:   getEnv("TASKFEED_DB_PATH", filepath.Join(dataDir, "taskfeed.db")),

		HubURL: getEnv("TASKFEED_HUB_URL", "http://localhost:3000"),
		WebDir: getEnv("TASKFEED_WEB_DIR", ""),

		MaxRetries:     getEnvInt("TASKFEED_MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("TASKFEED_RETRY_DELAY", 5*time.Second),
		ReconnectDelay: getEnvDuration("TASKFEED_RECONNECT_DELAY", time.Second),
		BufferInterval: getEnvDuration("TASKFEED_BUFFER_INTERVAL", 100*time.Millisecond),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
