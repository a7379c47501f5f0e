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
	Database DatabaseConfig
	Redis    RedisConfig
	Elastic  ElasticConfig
	AI       AIConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置（可选的关键词检索通道）
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// AIConfig AI配置
type AIConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	Embedding EmbeddingConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// EmbeddingConfig Embedding配置
// Provider 为 "hash" 时使用内置的确定性向量器，无需外部服务
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	Timeout    int
	Dimensions int
}

// UploadConfig 上传配置
type UploadConfig struct {
	BasePath          string
	MaxFileSize       int64
	AllowedExtensions []string
}

// PipelineConfig 文档处理管道配置
// 分块长度、重叠比例、检索 topK、重试次数均为可调参数
type PipelineConfig struct {
	ChunkSize      int
	ChunkOverlap   float64
	TopK           int
	MaxRetries     int
	RetryBackoffMS int
	Workers        int
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

	// 环境变量
	v.SetEnvPrefix("CONTRACT_AI")
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

// IsAllowedExtension 检查扩展名是否在允许列表中
func (c *UploadConfig) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "contract-ai")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", true)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "contract_ai")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Elastic（默认不启用）
	v.SetDefault("elastic.host", "")
	v.SetDefault("elastic.indexPrefix", "contract_ai")

	// AI
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.embedding.provider", "hash")
	v.SetDefault("ai.embedding.dimensions", 384)

	// Upload
	v.SetDefault("upload.basePath", "./data/uploads")
	v.SetDefault("upload.maxFileSize", 10*1024*1024)
	v.SetDefault("upload.allowedExtensions", []string{".pdf", ".txt", ".docx"})

	// Pipeline
	v.SetDefault("pipeline.chunkSize", 500)
	v.SetDefault("pipeline.chunkOverlap", 0.1)
	v.SetDefault("pipeline.topK", 5)
	v.SetDefault("pipeline.maxRetries", 3)
	v.SetDefault("pipeline.retryBackoffMS", 500)
	v.SetDefault("pipeline.workers", 4)
}
