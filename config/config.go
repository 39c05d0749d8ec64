package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultFile 默认配置文件路径
const DefaultFile = "config.yaml"

// EnvPrefix 环境变量前缀，如 REGDOC_SERVER_PORT 覆盖 server.port
const EnvPrefix = "REGDOC"

// Config 应用程序配置结构体
type Config struct {
	File     string         `mapstructure:"-"` // 实际使用的配置文件，未使用文件时为空
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Query    QueryConfig    `mapstructure:"query"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`          // 服务器主机
	Port         int           `mapstructure:"port"`          // 服务器端口
	Mode         string        `mapstructure:"mode"`          // gin 运行模式：debug 或 release
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写入超时
	StaticDir    string        `mapstructure:"static_dir"`    // 静态页面目录
	CORSOrigins  []string      `mapstructure:"cors_origins"`  // 允许的跨域来源
	MaxUploadMB  int           `mapstructure:"max_upload_mb"` // 上传大小上限(MB)
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig 基本认证配置
type AuthConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Users    map[string]string `mapstructure:"users"` // 额外的用户名到密码映射
}

// Accounts 返回全部认证账户，未启用时为空
func (a AuthConfig) Accounts() map[string]string {
	if !a.Enabled {
		return nil
	}
	accounts := make(map[string]string, len(a.Users)+1)
	for user, pass := range a.Users {
		if user != "" && pass != "" {
			accounts[user] = pass
		}
	}
	if a.Username != "" && a.Password != "" {
		accounts[a.Username] = a.Password
	}
	return accounts
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件，为空时只输出到标准输出
	MaxSize    int    `mapstructure:"max_size"`    // 单个日志文件大小上限(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数
	MaxAge     int    `mapstructure:"max_age"`     // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // 存储类型：local 或 minio
	Path  string      `mapstructure:"path"` // 本地存储路径
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig MinIO配置
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type      string       `mapstructure:"type"`      // 数据库类型：memory, faiss 或 milvus
	Path      string       `mapstructure:"path"`      // 本地持久化目录
	Dimension int          `mapstructure:"dimension"` // 向量维度
	Distance  string       `mapstructure:"distance"`  // 距离度量方式：cosine, l2, dot
	Milvus    MilvusConfig `mapstructure:"milvus"`
}

// MilvusConfig Milvus连接配置
type MilvusConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`    // 提供商：openai 或 tei
	BaseURL    string        `mapstructure:"base_url"`    // API基础URL
	APIKey     string        `mapstructure:"api_key"`     // API密钥
	Model      string        `mapstructure:"model"`       // 模型名称
	Dimension  int           `mapstructure:"dimension"`   // 向量维度
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
	BatchSize  int           `mapstructure:"batch_size"`  // 每次请求的文本数
	Workers    int           `mapstructure:"workers"`     // 并发请求数
	RateLimit  float64       `mapstructure:"rate_limit"`  // 每秒请求数上限，0表示不限制
	Burst      int           `mapstructure:"burst"`       // 令牌桶容量
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`    // 提供商：groq 或 openai
	BaseURL     string        `mapstructure:"base_url"`    // API基础URL
	APIKey      string        `mapstructure:"api_key"`     // API密钥
	Model       string        `mapstructure:"model"`       // 模型名称
	MaxTokens   int           `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32       `mapstructure:"temperature"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout"`     // 请求超时
	MaxRetries  int           `mapstructure:"max_retries"` // 最大重试次数
	RateLimit   float64       `mapstructure:"rate_limit"`  // 每秒请求数上限，0表示不限制
	Burst       int           `mapstructure:"burst"`       // 令牌桶容量
}

// ExtractConfig PDF结构化配置
type ExtractConfig struct {
	Reader         string    `mapstructure:"reader"`          // 文本层读取器：ledongthuc 或 pdfcpu
	Workers        int       `mapstructure:"workers"`         // 页面并发数
	DetectTables   bool      `mapstructure:"detect_tables"`   // 是否检测表格
	TempDir        string    `mapstructure:"temp_dir"`        // 处理上传文件的临时目录
	EmbedBatchSize int       `mapstructure:"embed_batch"`     // 每批向量化的记录数
	WriteBatchSize int       `mapstructure:"write_batch"`     // 每批写入向量库的条目数
	OCR            OCRConfig `mapstructure:"ocr"`
}

// OCRConfig OCR兜底配置
type OCRConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinTextChars int           `mapstructure:"min_text_chars"` // 文本层少于该字符数时启用OCR
	DPI          int           `mapstructure:"dpi"`            // 渲染分辨率
	Rasterizer   string        `mapstructure:"rasterizer"`     // 页面渲染命令
	Engine       string        `mapstructure:"engine"`         // OCR引擎：tesseract 或 http
	Command      string        `mapstructure:"command"`        // tesseract 命令
	Language     string        `mapstructure:"language"`       // tesseract 语言
	URL          string        `mapstructure:"url"`            // HTTP OCR 服务地址
	Timeout      time.Duration `mapstructure:"timeout"`        // HTTP OCR 超时
	MaxRetries   int           `mapstructure:"max_retries"`    // HTTP OCR 最大重试次数
}

// QueryConfig 问答配置
type QueryConfig struct {
	TopK     int           `mapstructure:"top_k"`     // 默认检索条目数
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 回答缓存时间，0表示不缓存
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type      string `mapstructure:"type"`      // 缓存类型：memory 或 redis
	Address   string `mapstructure:"address"`   // Redis地址
	Password  string `mapstructure:"password"`  // Redis密码
	DB        int    `mapstructure:"db"`        // Redis数据库
	Namespace string `mapstructure:"namespace"` // 键命名空间
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enabled       bool          `mapstructure:"enabled"`        // 是否启用异步入库
	Type          string        `mapstructure:"type"`           // 队列类型
	RedisAddr     string        `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string        `mapstructure:"redis_password"` // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`    // 重试延迟
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`   // 单个任务超时
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 是否记录入库和问答历史
	Type    string `mapstructure:"type"`    // 数据库类型
	DSN     string `mapstructure:"dsn"`     // 数据源名称
}

// WatchConfig 收件目录监听配置
type WatchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Dir          string        `mapstructure:"dir"`           // 监听目录
	Collection   string        `mapstructure:"collection"`    // 写入的集合
	Mode         string        `mapstructure:"mode"`          // 重复入库策略
	Debounce     time.Duration `mapstructure:"debounce"`      // 文件停止变化多久后处理
	ScanExisting bool          `mapstructure:"scan_existing"` // 启动时处理已有文件
}

// LoadOption 加载选项
type LoadOption func(v *viper.Viper) error

// WithFlag 将命令行参数绑定到配置键，显式设置的参数优先于文件和环境变量
func WithFlag(key string, flag *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// Load 从文件和环境变量加载配置
// path 为空时读取当前目录的 config.yaml，文件不存在则使用默认值；
// 显式指定的文件不存在时返回错误
func Load(path string, opts ...LoadOption) (*Config, error) {
	// .env 中的变量不覆盖已有环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to bind flag: %w", err)
		}
	}

	expandEnvironment(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回全部默认值组成的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	expandEnvironment(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.VectorDB.Dimension <= 0 {
		return fmt.Errorf("invalid vectordb.dimension: %d", c.VectorDB.Dimension)
	}
	if c.Embed.Dimension > 0 && c.Embed.Dimension != c.VectorDB.Dimension {
		return fmt.Errorf("embed.dimension %d does not match vectordb.dimension %d", c.Embed.Dimension, c.VectorDB.Dimension)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("invalid query.top_k: %d", c.Query.TopK)
	}
	if c.Auth.Enabled && len(c.Auth.Accounts()) == 0 {
		return errors.New("auth is enabled but no credentials are configured")
	}
	if c.Watch.Enabled && (c.Watch.Dir == "" || c.Watch.Collection == "") {
		return errors.New("watch requires both dir and collection")
	}
	switch c.Extract.Reader {
	case "ledongthuc", "pdfcpu":
	default:
		return fmt.Errorf("unsupported extract.reader: %s", c.Extract.Reader)
	}
	return nil
}

// envPattern 匹配 ${VAR} 形式的占位符
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvironment 用环境变量替换字符串配置中的 ${VAR}，未设置的变量替换为空串
func expandEnvironment(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "${") {
			continue
		}
		v.Set(key, expandEnv(s))
	}
}

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 100)

	// 认证
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "${AUTH_PASSWORD}")
	v.SetDefault("auth.users", map[string]string{})

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	// 存储
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.access_key", "minioadmin")
	v.SetDefault("storage.minio.secret_key", "${MINIO_SECRET_KEY}")
	v.SetDefault("storage.minio.bucket", "regdoc")
	v.SetDefault("storage.minio.use_ssl", false)

	// 向量数据库
	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.dimension", 1024)
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.milvus.address", "localhost:19530")
	v.SetDefault("vectordb.milvus.username", "")
	v.SetDefault("vectordb.milvus.password", "")
	v.SetDefault("vectordb.milvus.db_name", "")

	// 嵌入模型
	v.SetDefault("embed.provider", "tei")
	v.SetDefault("embed.base_url", "http://localhost:8081")
	v.SetDefault("embed.api_key", "${EMBED_API_KEY}")
	v.SetDefault("embed.model", "BAAI/bge-large-en-v1.5")
	v.SetDefault("embed.dimension", 1024)
	v.SetDefault("embed.timeout", "60s")
	v.SetDefault("embed.max_retries", 3)
	v.SetDefault("embed.batch_size", 32)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.rate_limit", 0)
	v.SetDefault("embed.burst", 1)

	// 大语言模型
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.api_key", "${GROQ_API_KEY}")
	v.SetDefault("llm.model", "meta-llama/llama-4-scout-17b-16e-instruct")
	v.SetDefault("llm.max_tokens", 700)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.rate_limit", 0)
	v.SetDefault("llm.burst", 1)

	// 结构化
	v.SetDefault("extract.reader", "ledongthuc")
	v.SetDefault("extract.workers", 4)
	v.SetDefault("extract.detect_tables", true)
	v.SetDefault("extract.temp_dir", "")
	v.SetDefault("extract.embed_batch", 64)
	v.SetDefault("extract.write_batch", 256)
	v.SetDefault("extract.ocr.enabled", false)
	v.SetDefault("extract.ocr.min_text_chars", 20)
	v.SetDefault("extract.ocr.dpi", 300)
	v.SetDefault("extract.ocr.rasterizer", "pdftoppm")
	v.SetDefault("extract.ocr.engine", "tesseract")
	v.SetDefault("extract.ocr.command", "tesseract")
	v.SetDefault("extract.ocr.language", "eng")
	v.SetDefault("extract.ocr.url", "")
	v.SetDefault("extract.ocr.timeout", "120s")
	v.SetDefault("extract.ocr.max_retries", 2)

	// 问答
	v.SetDefault("query.top_k", 20)
	v.SetDefault("query.cache_ttl", "1h")

	// 缓存
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.namespace", "regdoc")

	// 队列
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.retry_limit", 1)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_timeout", "30m")

	// 数据库
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/regdoc.db")

	// 收件目录
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.dir", "./inbox")
	v.SetDefault("watch.collection", "")
	v.SetDefault("watch.mode", "append")
	v.SetDefault("watch.debounce", "2s")
	v.SetDefault("watch.scan_existing", true)
}
