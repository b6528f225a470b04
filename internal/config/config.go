package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Elastic  ElasticConfig
	Pinecone PineconeConfig
	Vector   VectorConfig
	Storage  StorageConfig
	Auth     AuthConfig
	AI       AIConfig
	Ingest   IngestConfig
	Query    QueryConfig
}

// AppConfig application metadata
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig HTTP server
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  []string
	// chat messages per user per minute, 0 disables
	ChatRateLimit int
}

// LogConfig logger mode: development or production
type LogConfig struct {
	Mode string
}

// DatabaseConfig relational store. Driver is postgres or sqlite.
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis, used by the ingestion queue
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch vector backend
type ElasticConfig struct {
	Host     string
	Username string
	Password string
	Index    string
}

// PineconeConfig Pinecone vector backend
type PineconeConfig struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	IndexName  string
	IndexHost  string
	Namespace  string
	Timeout    int
}

// VectorConfig selects the vector backend: pinecone, elastic or chromem
type VectorConfig struct {
	Backend     string
	Dimensions  int
	Collection  string
	ChromemPath string
}

// StorageConfig uploaded file storage: local or minio
type StorageConfig struct {
	Type      string
	LocalPath string
	MinIO     MinIOConfig
}

// MinIOConfig object storage
type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

// AuthConfig bearer token validation
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// AIConfig AI配置
type AIConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	Alibaba   AlibabaConfig
	DeepSeek  DeepSeekConfig
	Embedding EmbeddingConfig
	Rerank    RerankConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// AlibabaConfig DashScope compatible-mode
type AlibabaConfig struct {
	AccessKeySecret string
	Model           string
	Timeout         int
}

// DeepSeekConfig DeepSeek配置
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    int
	Dimensions int
	BatchSize  int
}

// RerankConfig Provider is llm, lexical or none
type RerankConfig struct {
	Provider string
}

// IngestConfig document ingestion
type IngestConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	UpsertBatchSize int
	MaxFileSizeMB   int
	Queue           string
	QueueKey        string
	Workers         int
}

// QueryConfig retrieval defaults
type QueryConfig struct {
	DefaultTopK int
}

var globalConfig *Config

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("config not loaded")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "docqa")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", true)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("server.chatRateLimit", 3)

	v.SetDefault("log.mode", "development")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "docqa")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlitePath", "./data/docqa.db")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.index", "docqa_chunks")

	v.SetDefault("pinecone.apiVersion", "2025-10")
	v.SetDefault("pinecone.baseUrl", "https://api.pinecone.io")
	v.SetDefault("pinecone.indexName", "docqa")
	v.SetDefault("pinecone.timeout", 30)

	v.SetDefault("vector.backend", "chromem")
	v.SetDefault("vector.dimensions", 1024)
	v.SetDefault("vector.collection", "docqa_chunks")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.localPath", "./data/uploads")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.timeout", 60)
	v.SetDefault("ai.embedding.provider", "dashscope")
	v.SetDefault("ai.embedding.model", "text-embedding-v3")
	v.SetDefault("ai.embedding.timeout", 30)
	v.SetDefault("ai.embedding.batchSize", 64)
	v.SetDefault("ai.rerank.provider", "lexical")

	v.SetDefault("ingest.chunkSize", 1000)
	v.SetDefault("ingest.chunkOverlap", 200)
	v.SetDefault("ingest.upsertBatchSize", 100)
	v.SetDefault("ingest.maxFileSizeMB", 10)
	v.SetDefault("ingest.queue", "local")
	v.SetDefault("ingest.queueKey", "docqa:ingest:jobs")
	v.SetDefault("ingest.workers", 2)

	v.SetDefault("query.defaultTopK", 5)
}
