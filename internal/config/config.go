package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr              string
	Port                    string
	DatabasePath            string
	SessionSecret           string
	GinMode                 string
	PostBackend             string
	MongoURI                string
	MongoDatabase           string
	MongoTimeout            time.Duration
	StrictPostList          bool
	DefaultAdminPassword    string
	Location                *time.Location
	ActivityCleanupSchedule string
}

// Load 依次读取 .env、可选的 config.yaml 与环境变量，并为缺失项提供安全的默认值。
// 环境变量会覆盖配置文件中的同名设置（config.yaml 中使用小写蛇形键名）。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "classboard.db")
	v.SetDefault("session_secret", "classboard-dev-secret")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("post_backend", "local")
	v.SetDefault("mongo_database", "classboard")
	v.SetDefault("mongo_timeout", "10s")
	v.SetDefault("posts_strict_list", false)
	v.SetDefault("admin_default_password", "admin123")
	v.SetDefault("timezone", "Local")
	v.SetDefault("activity_cleanup_schedule", "@daily")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	port := strings.TrimSpace(v.GetString("port"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(v.GetString("listen_addr"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("post_backend")))
	if backend == "" {
		backend = "local"
	}
	mongoURI := strings.TrimSpace(v.GetString("mongo_uri"))
	if backend == "mongo" && mongoURI == "" {
		return AppConfig{}, errors.New("MONGO_URI is required when POST_BACKEND is mongo")
	}

	timezone := strings.TrimSpace(v.GetString("timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	mongoTimeout := v.GetDuration("mongo_timeout")
	if mongoTimeout <= 0 {
		mongoTimeout = 10 * time.Second
	}

	return AppConfig{
		ListenAddr:              listenAddr,
		Port:                    port,
		DatabasePath:            strings.TrimSpace(v.GetString("database_path")),
		SessionSecret:           strings.TrimSpace(v.GetString("session_secret")),
		GinMode:                 strings.TrimSpace(v.GetString("gin_mode")),
		PostBackend:             backend,
		MongoURI:                mongoURI,
		MongoDatabase:           strings.TrimSpace(v.GetString("mongo_database")),
		MongoTimeout:            mongoTimeout,
		StrictPostList:          v.GetBool("posts_strict_list"),
		DefaultAdminPassword:    v.GetString("admin_default_password"),
		Location:                location,
		ActivityCleanupSchedule: strings.TrimSpace(v.GetString("activity_cleanup_schedule")),
	}, nil
}
