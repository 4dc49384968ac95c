package config

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Port    string `mapstructure:"port"`
		Env     string `mapstructure:"env"`
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"app"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		GroupID string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenLifespan time.Duration `mapstructure:"token_lifespan"`
	} `mapstructure:"auth"`
	Cloudinary struct {
		CloudName string `mapstructure:"cloud_name"`
		ApiKey    string `mapstructure:"api_key"`
		ApiSecret string `mapstructure:"api_secret"`
		Folder    string `mapstructure:"folder"`
	} `mapstructure:"cloudinary"`
	Jaeger struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"jaeger"`
	VCenter struct {
		Server   string `mapstructure:"server"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"vcenter"`
	Export struct {
		SystemCategoryPrefix string `mapstructure:"system_category_prefix"`
		OutputDir            string `mapstructure:"output_dir"`
	} `mapstructure:"export"`
	Restore struct {
		LockTTL time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"restore"`
}

// LoadConfig reads an optional .env and config.yaml from path, then lets
// environment variables override every key.
func LoadConfig(path string) (cfg Config, err error) {
	if path == "" {
		path = "."
	}

	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil {
		log.Println("warning: .env file not found, use default.")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("kafka.group_id", "taxonomy-job-runner")
	v.SetDefault("auth.token_lifespan", 12*time.Hour)
	v.SetDefault("cloudinary.folder", "backups/taxonomy")
	v.SetDefault("export.system_category_prefix", "vSphere")
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("restore.lock_ttl", 30*time.Minute)

	if err = v.ReadInConfig(); err != nil {
		log.Printf("note: config.yaml not found, read .env only. Error: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.base_url", "APP_BASE_URL")
	v.BindEnv("db.dsn", "DB_DSN")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_lifespan", "TOKEN_LIFESPAN")

	v.BindEnv("cloudinary.cloud_name", "CLOUDINARY_CLOUD_NAME")
	v.BindEnv("cloudinary.api_key", "CLOUDINARY_API_KEY")
	v.BindEnv("cloudinary.api_secret", "CLOUDINARY_API_SECRET")
	v.BindEnv("cloudinary.folder", "CLOUDINARY_FOLDER")

	v.BindEnv("jaeger.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.BindEnv("vcenter.server", "VCENTER_SERVER")
	v.BindEnv("vcenter.username", "VCENTER_USERNAME")
	v.BindEnv("vcenter.password", "VCENTER_PASSWORD")
	v.BindEnv("vcenter.insecure", "VCENTER_INSECURE")

	v.BindEnv("export.system_category_prefix", "EXPORT_SYSTEM_CATEGORY_PREFIX")
	v.BindEnv("export.output_dir", "EXPORT_OUTPUT_DIR")
	v.BindEnv("restore.lock_ttl", "RESTORE_LOCK_TTL")

	err = v.Unmarshal(&cfg)
	return
}
