package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	MenuCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	BusinessTimezone      string
	SpecialWindowStart    int
	SpecialWindowEnd      int
	ReplenishTarget       int
	ShortageWebhookURL    string
}

func Load() Config {
	// Best effort: a missing .env file simply means all settings come
	// from the process environment.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	menuTTL := intEnv("MENU_CACHE_TTL_SECONDS", 30, 1)
	tokenTTL := intEnv("ACCESS_TOKEN_TTL_MINUTES", 480, 1)
	winStart := intEnv("SPECIAL_WINDOW_START", 17, 0)
	winEnd := intEnv("SPECIAL_WINDOW_END", 19, 0)
	replenish := intEnv("REPLENISH_TARGET", 50, 1)

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		MenuCacheTTLSeconds:   menuTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "Asia/Kolkata"),
		SpecialWindowStart:    winStart,
		SpecialWindowEnd:      winEnd,
		ReplenishTarget:       replenish,
		ShortageWebhookURL:    strings.TrimSpace(os.Getenv("SHORTAGE_WEBHOOK_URL")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func intEnv(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}
