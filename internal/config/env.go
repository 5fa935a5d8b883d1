package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DispatcherMemory = "memory"
	DispatcherKafka  = "kafka"

	BackendPgvector = "pgvector"
	BackendMilvus   = "milvus"
)

type Config struct {
	Port        string
	CorsOrigins []string

	DatabaseURL string
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string

	LLMProvider   string
	EmbedProvider string
	AIAPIKey      string
	OpenAIAPIKey  string
	OllamaHost    string
	GenModel      string
	RewriteModel  string
	EmbedModel    string
	EmbedDim      int

	VectorBackend        string
	KnowledgeCollection  string
	KnowledgeMaxDistance float64
	KnowledgeMinScore    float64
	MilvusAddress        string
	MilvusUsername       string
	MilvusPassword       string

	Dispatcher        string
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaGroupID      string
	KafkaClientID     string
	WorkerConcurrency int
	TaskMaxAttempts   int
	TaskRetryBackoff  time.Duration

	ChunkSize    int
	ChunkOverlap int
	QueryTopK    int
	FetchTimeout time.Duration

	StalePendingAfter time.Duration
	SweepInterval     time.Duration

	LogLevel string
	LogFile  string
}

// LoadConfig loads the environment variables (and a .env file when present)
// and returns a validated config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		CorsOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docqa-uploads"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", ProviderGemini)),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		GenModel:      getEnv("GEN_MODEL", "gemini-1.5-flash"),
		RewriteModel:  getEnv("REWRITE_MODEL", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),

		VectorBackend:        strings.ToLower(getEnv("VECTOR_BACKEND", BackendPgvector)),
		KnowledgeCollection:  getEnv("KNOWLEDGE_COLLECTION", "rag_documents"),
		KnowledgeMaxDistance: getEnvFloat("KNOWLEDGE_MAX_DISTANCE", 0),
		KnowledgeMinScore:    getEnvFloat("KNOWLEDGE_MIN_SCORE", 0),
		MilvusAddress:        getEnv("MILVUS_ADDRESS", "localhost:19530"),
		MilvusUsername:       getEnv("MILVUS_USERNAME", ""),
		MilvusPassword:       getEnv("MILVUS_PASSWORD", ""),

		Dispatcher:        strings.ToLower(getEnv("DISPATCHER", DispatcherMemory)),
		KafkaBrokers:      getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "ingestion-tasks"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "docqa-workers"),
		KafkaClientID:     getEnv("KAFKA_CLIENT_ID", "docqa"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		TaskMaxAttempts:   getEnvInt("TASK_MAX_ATTEMPTS", 3),
		TaskRetryBackoff:  getEnvDuration("TASK_RETRY_BACKOFF", 2*time.Second),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		QueryTopK:    getEnvInt("QUERY_TOP_K", 3),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		StalePendingAfter: getEnvDuration("STALE_PENDING_AFTER", 10*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if cfg.RewriteModel == "" {
		cfg.RewriteModel = cfg.GenModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	for _, p := range []struct{ key, val string }{{"LLM_PROVIDER", c.LLMProvider}, {"EMBED_PROVIDER", c.EmbedProvider}} {
		switch p.val {
		case ProviderGemini:
			if c.AIAPIKey == "" {
				errs = append(errs, fmt.Errorf("%s=gemini requires GEMINI_API_KEY", p.key))
			}
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				errs = append(errs, fmt.Errorf("%s=openai requires OPENAI_API_KEY", p.key))
			}
		case ProviderOllama:
		default:
			errs = append(errs, fmt.Errorf("unsupported %s %q", p.key, p.val))
		}
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	if c.VectorBackend != BackendPgvector && c.VectorBackend != BackendMilvus {
		errs = append(errs, fmt.Errorf("unsupported VECTOR_BACKEND %q", c.VectorBackend))
	}
	if c.Dispatcher != DispatcherMemory && c.Dispatcher != DispatcherKafka {
		errs = append(errs, fmt.Errorf("unsupported DISPATCHER %q", c.Dispatcher))
	}
	if c.Dispatcher == DispatcherKafka && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("DISPATCHER=kafka requires KAFKA_BROKERS"))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking: CHUNK_SIZE=%d CHUNK_OVERLAP=%d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.QueryTopK <= 0 {
		errs = append(errs, fmt.Errorf("QUERY_TOP_K must be positive, got %d", c.QueryTopK))
	}
	if c.WorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency))
	}
	if c.TaskMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("TASK_MAX_ATTEMPTS must be positive, got %d", c.TaskMaxAttempts))
	}

	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
