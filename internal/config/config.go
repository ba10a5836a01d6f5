package config

import (
	"os"

	"meetscribe/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Addr  string `yaml:"addr" env:"SERVER_ADDR" env-default:":8080"`
		Debug bool   `yaml:"debug" env:"DEBUG" env-default:"false"`
	} `yaml:"server"`

	Jobs struct {
		// Backend selects the artifact store: fs, s3, or postgres.
		Backend string `yaml:"backend" env:"JOBS_BACKEND" env-default:"fs"`
		Dir     string `yaml:"dir" env:"JOBS_DIR" env-default:"server_jobs"`
	} `yaml:"jobs"`

	Worker struct {
		Count    int `yaml:"count" env:"WORKER_COUNT" env-default:"2"`
		Capacity int `yaml:"capacity" env:"QUEUE_CAPACITY" env-default:"64"`
	} `yaml:"worker"`

	Filter struct {
		NoSpeechThreshold float64  `yaml:"no_speech_threshold" env:"FILTER_NO_SPEECH_THRESHOLD" env-default:"0.6"`
		Phrases           []string `yaml:"phrases" env:"FILTER_PHRASES"`
	} `yaml:"filter"`

	Align struct {
		SourcePriority []string `yaml:"source_priority" env:"SOURCE_PRIORITY" env-default:"microphone,loopback"`
	} `yaml:"align"`

	Whisper struct {
		Endpoint     string `yaml:"endpoint" env:"WHISPER_ENDPOINT" env-default:"http://localhost:9000"`
		DefaultModel string `yaml:"default_model" env:"WHISPER_DEFAULT_MODEL" env-default:"base"`
	} `yaml:"whisper"`

	Diarizer struct {
		Endpoint string `yaml:"endpoint" env:"DIARIZER_ENDPOINT" env-default:"http://localhost:9001"`
		Model    string `yaml:"model" env:"DIARIZER_MODEL" env-default:"speaker-diarization-3.1"`
	} `yaml:"diarizer"`

	OpenAI struct {
		APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
		Model   string `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
		BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	} `yaml:"openai"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
	} `yaml:"postgres"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`
}

func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("configs/config.yaml", &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}
