// Package config 负责加载和校验应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"askmynotes-go/pkg/apperr"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 它在启动时被解析一次，之后以显式参数传入各构造函数。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tika      TikaConfig      `mapstructure:"tika"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Query     QueryConfig     `mapstructure:"query"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 事件发布的配置，brokers 为空时不发布事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 文本抽取服务的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储嵌入模型相关的配置。provider 可选 openai 或 mock。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// VectorConfig 存储向量库网关的配置。driver 可选 elasticsearch 或 local。
type VectorConfig struct {
	Driver        string              `mapstructure:"driver"`
	Collection    string              `mapstructure:"collection"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Local         LocalVectorConfig   `mapstructure:"local"`
}

// ElasticsearchConfig 存储 Elasticsearch 后端的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// LocalVectorConfig 存储内嵌向量库后端的配置，path 为空时仅驻留内存。
type LocalVectorConfig struct {
	Path string `mapstructure:"path"`
}

// IngestionConfig 存储文档切分的配置。
type IngestionConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// QueryConfig 存储检索相关的配置。
type QueryConfig struct {
	TopK int `mapstructure:"top_k"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示规则（可选）。
type LLMPromptConfig struct {
	Rules string `mapstructure:"rules"`
}

// Load 从指定路径读取 YAML 配置并解析、校验。
// 配置不合法属于致命错误，调用方应在启动期直接退出。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("vector.driver", "elasticsearch")
	v.SetDefault("vector.collection", "document_chunks")
	v.SetDefault("ingestion.chunk_size", 1000)
	v.SetDefault("ingestion.chunk_overlap", 200)
	v.SetDefault("query.top_k", 5)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验会导致运行期必然出错的配置项。
func (c *Config) Validate() error {
	if c.Ingestion.ChunkSize <= 0 {
		return apperr.Configf("ingestion.chunk_size must be positive, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return apperr.Configf("ingestion.chunk_overlap %d must be smaller than chunk_size %d",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return apperr.Configf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		return apperr.Configf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Vector.Driver {
	case "elasticsearch", "local":
	default:
		return apperr.Configf("unknown vector driver %q", c.Vector.Driver)
	}
	if c.Query.TopK <= 0 {
		return apperr.Configf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	return nil
}
