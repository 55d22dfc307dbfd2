package config

import (
	"os"
	"strconv"
	"strings"
)

type EnvConfig struct {
	Postgres struct {
		HOST     string
		Database string
		Username string
		Password string
		Port     string
	}
	JWT struct {
		SecretKey string
		Algorithm string
		Expire    int
	}
	CORS struct {
		AllowDomains string
		GlobalDomain string
	}
	Redis struct {
		Password  string
		Database  int
		RedisHost string
		RedisPort string
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	Minio struct {
		Endpoint    string
		AccessKey   string
		SecretKey   string
		UseSSL      bool
		InputBucket string
	}
	R2 struct {
		AccountEndpoint string
		AccessKey       string
		SecretKey       string
		RenderBucket    string
		PublicBaseURL   string
	}
	Replicate struct {
		APIURL              string
		APIToken            string
		WebhookSecret       string // format: prefix_base64key
		WebhookURL          string // callback the provider posts to
		InitialModelVersion string
		UpscaleModelVersion string
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode  string
		Group string
	}
	DomainName string
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.HOST = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")
	config.JWT.Algorithm = os.Getenv("JWT_ALGORITHM")

	if val := os.Getenv("JWT_EXPIRE"); val != "" {
		config.JWT.Expire, _ = strconv.Atoi(val)
	} else {
		config.JWT.Expire = 3600 * 24 * 7
	}

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")
	config.CORS.GlobalDomain = os.Getenv("GLOBAL_DOMAIN")

	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))
	config.Redis.RedisHost = os.Getenv("REDIS_HOST")
	config.Redis.RedisPort = os.Getenv("REDIS_PORT")

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}

	// MinIO holds the uploaded source photos
	config.Minio.Endpoint = os.Getenv("MINIO_ENDPOINT")
	config.Minio.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	config.Minio.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	config.Minio.UseSSL = os.Getenv("MINIO_USE_SSL") == "true"
	config.Minio.InputBucket = os.Getenv("MINIO_INPUT_BUCKET")
	if config.Minio.InputBucket == "" {
		config.Minio.InputBucket = "room-photos"
	}

	// Cloudflare R2 holds the finished renders
	config.R2.AccountEndpoint = os.Getenv("R2_ACCOUNT_ENDPOINT")
	config.R2.AccessKey = os.Getenv("R2_ACCESS_KEY_ID")
	config.R2.SecretKey = os.Getenv("R2_SECRET_ACCESS_KEY")
	config.R2.RenderBucket = os.Getenv("R2_RENDER_BUCKET")
	if config.R2.RenderBucket == "" {
		config.R2.RenderBucket = "renders"
	}
	config.R2.PublicBaseURL = strings.TrimRight(os.Getenv("R2_PUBLIC_BASE_URL"), "/")

	// Replicate
	config.Replicate.APIURL = os.Getenv("REPLICATE_API_URL")
	if config.Replicate.APIURL == "" {
		config.Replicate.APIURL = "https://api.replicate.com/v1"
	}
	config.Replicate.APIToken = os.Getenv("REPLICATE_API_TOKEN")
	config.Replicate.WebhookSecret = os.Getenv("REPLICATE_WEBHOOK_SECRET")
	config.Replicate.WebhookURL = os.Getenv("REPLICATE_WEBHOOK_URL")
	config.Replicate.InitialModelVersion = os.Getenv("REPLICATE_DESIGN_MODEL_VERSION")
	config.Replicate.UpscaleModelVersion = os.Getenv("REPLICATE_UPSCALE_MODEL_VERSION")

	// Grafana/OpenTelemetry
	grafanaEndpoint := os.Getenv("GRAFANA_OTLP_ENDPOINT")
	// Remove protocol for OpenTelemetry client to avoid duplicate protocols
	if strings.HasPrefix(grafanaEndpoint, "https://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "https://")
	} else if strings.HasPrefix(grafanaEndpoint, "http://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "http://")
	} else {
		config.Grafana.OTLPEndpoint = grafanaEndpoint
	}
	config.Grafana.ServiceName = os.Getenv("SERVICE_NAME")
	if config.Grafana.ServiceName == "" {
		config.Grafana.ServiceName = "makeit-render-orchestrator"
	}

	config.Environment.Mode = os.Getenv("DEPLOY_ENV")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}

	config.Environment.Group = os.Getenv("GROUP_NAME")
	if config.Environment.Group == "" {
		config.Environment.Group = "local"
	}

	config.DomainName = os.Getenv("DOMAIN_NAME")
	if config.DomainName == "" {
		config.DomainName = "localhost:8080"
	}

	return &config
}
