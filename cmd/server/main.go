package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rankjuice/internal/ai"
	"rankjuice/internal/api"
	"rankjuice/internal/volume"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	aiCfg := ai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if temp := os.Getenv("OPENAI_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			aiCfg.Temperature = v
		}
	}
	if maxTokens := os.Getenv("OPENAI_MAX_TOKENS"); maxTokens != "" {
		if v, err := strconv.Atoi(maxTokens); err == nil {
			aiCfg.MaxTokens = v
		}
	}

	volumeCfg := volume.Config{
		APIKey:  os.Getenv("VOLUME_API_KEY"),
		BaseURL: os.Getenv("VOLUME_BASE_URL"),
	}
	if timeout := os.Getenv("VOLUME_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			volumeCfg.Timeout = d
		}
	}
	if ttl := os.Getenv("VOLUME_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			volumeCfg.CacheTTL = d
		}
	}

	maxCandidates := 0
	if v := strings.TrimSpace(os.Getenv("MAX_CANDIDATES")); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			maxCandidates = val
		}
	}
	backendMaxBytes := 0
	if v := strings.TrimSpace(os.Getenv("BACKEND_MAX_BYTES")); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			backendMaxBytes = val
		}
	}

	disableAI := strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_AI")), "true")

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		allowedOrigins = allowedOrigins[:0]
		for _, origin := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	cfg := api.Config{
		DBPath:          filepath.Join(dataDir, "rankjuice.db"),
		PolicyTermsPath: strings.TrimSpace(os.Getenv("POLICY_TERMS_PATH")),
		BrandsCSVPath:   strings.TrimSpace(os.Getenv("BRANDS_CSV_PATH")),
		AllowedOrigins:  allowedOrigins,
		AIConfig:        aiCfg,
		VolumeConfig:    volumeCfg,
		DisableAI:       disableAI,
		MaxCandidates:   maxCandidates,
		BackendMaxBytes: backendMaxBytes,
	}

	if override := strings.TrimSpace(os.Getenv("RANKJUICE_DB_PATH")); override != "" {
		cfg.DBPath = override
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logrus.Infof("starting rankjuice backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
