package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 是支持 "2m"、"30s" 形式 YAML 字面量的时长类型。
// 纯数字按秒解释。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("无效的时长字面量 %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("无法解析时长: %s", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std 返回标准库的 time.Duration 表示。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 基准测试结果载荷的存储桶
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 时序数据点的集合名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`            // Kafka Broker 地址列表
	NotificationsTopic string   `yaml:"notificationsTopic"` // 生命周期通知主题
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 缓存配置
	MySQL   MySQLConfig `yaml:"mysql"`   // MySQL 数据库配置
	MinIO   MinIOConfig `yaml:"minio"`   // MinIO 对象存储配置
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 时序存储配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ExecutorConfig 定义了执行器的并发与重试默认值。
type ExecutorConfig struct {
	// ProviderConcurrency 是每个 provider 的并发上限。
	// 未列出的 provider 使用 DefaultConcurrency。
	ProviderConcurrency map[string]int `yaml:"providerConcurrency"`
	DefaultConcurrency  int            `yaml:"defaultConcurrency"` // 缺省并发上限
	DefaultTimeout      Duration       `yaml:"defaultTimeout"`     // 单次执行的缺省超时
	MaxAttempts         int            `yaml:"maxAttempts"`        // 缺省最大尝试次数
	BaseDelay           Duration       `yaml:"baseDelay"`          // 缺省初始退避延迟
	MaxDelay            Duration       `yaml:"maxDelay"`           // 缺省退避延迟上限
	BackoffMultiplier   float64        `yaml:"backoffMultiplier"`  // 缺省退避系数

	// ProviderRequestRate 是每个 provider 每秒允许发起的请求数。
	// 未列出的 provider 使用 RequestRate；0 表示不限速。
	ProviderRequestRate map[string]float64 `yaml:"providerRequestRate"`
	RequestRate         float64            `yaml:"requestRate"`  // 缺省请求速率 (次/秒)
	RequestBurst        int                `yaml:"requestBurst"` // 令牌桶容量
}

// ScoringConfig 定义了评分引擎的批处理参数。
type ScoringConfig struct {
	BatchSize int `yaml:"batchSize"` // 并行评分的批大小
}

// OrchestratorConfig 定义了编排器的调度参数。
type OrchestratorConfig struct {
	BatchSize            int      `yaml:"batchSize"`            // 每批派发的执行请求数上限
	ProgressInterval     int      `yaml:"progressInterval"`     // 每处理多少批发送一次进度通知
	NotificationQueueLen int      `yaml:"notificationQueueLen"` // 通知出站队列长度
	SchedulerTick        Duration `yaml:"schedulerTick"`        // 调度器轮询间隔
}

// ResourceBudget 定义了一个组织可用的资源预算。
type ResourceBudget struct {
	MaxConcurrency int      `yaml:"maxConcurrency"` // 最大并发执行数
	MaxDuration    Duration `yaml:"maxDuration"`    // 单次运行的时长上限
}

// ResourcesConfig 定义了组织级资源预算。
type ResourcesConfig struct {
	Default ResourceBudget            `yaml:"default"` // 未单独配置的组织使用的预算
	Orgs    map[string]ResourceBudget `yaml:"orgs"`    // 按组织覆盖的预算
}

// ModelPricing 定义了单个模型的 token 价格（每千 token）。
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"promptPer1K"`
	CompletionPer1K float64 `yaml:"completionPer1K"`
}

// ProviderConfig 定义了一个可调用的模型供应商端点。
type ProviderConfig struct {
	Name    string   `yaml:"name"`    // 供应商标识，例如 "openai"
	BaseURL string   `yaml:"baseURL"` // OpenAI 兼容接口的基础 URL
	APIKey  string   `yaml:"apiKey"`  // 鉴权密钥
	Timeout Duration `yaml:"timeout"` // 单次 HTTP 请求超时
}

// JudgeConfig 定义了 LLM 评估器使用的模型。
type JudgeConfig struct {
	Provider string `yaml:"provider"` // 评估模型所属的供应商
	ModelID  string `yaml:"modelID"`  // 评估模型 ID
}

// CacheConfig 定义了结果存储的缓存行为。
type CacheConfig struct {
	TTL Duration `yaml:"ttl"` // 点查缓存的存活时间
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8080")
}

// EngineConfig 汇总了引擎各组件的运行参数。
type EngineConfig struct {
	Executor     ExecutorConfig          `yaml:"executor"`
	Scoring      ScoringConfig           `yaml:"scoring"`
	Orchestrator OrchestratorConfig      `yaml:"orchestrator"`
	Resources    ResourcesConfig         `yaml:"resources"`
	Providers    []ProviderConfig        `yaml:"providers"` // 模型供应商端点列表
	Judge        JudgeConfig             `yaml:"judge"`
	Pricing      map[string]ModelPricing `yaml:"pricing"` // 按模型 ID 的价格表
	Cache        CacheConfig             `yaml:"cache"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App       AppInfo         `yaml:"app"`       // 应用程序信息
	Server    ServerConfig    `yaml:"server"`    // HTTP 服务配置
	Logger    LoggerConfig    `yaml:"logger"`    // 日志记录器配置
	Databases DatabaseConfigs `yaml:"databases"` // 数据库配置
	Engine    EngineConfig    `yaml:"engine"`    // 引擎配置
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults 为未配置的引擎参数填充缺省值。
func applyDefaults(cfg *AppConfig) {
	e := &cfg.Engine
	if e.Executor.DefaultConcurrency <= 0 {
		e.Executor.DefaultConcurrency = 4
	}
	if e.Executor.DefaultTimeout <= 0 {
		e.Executor.DefaultTimeout = Duration(2 * time.Minute)
	}
	if e.Executor.MaxAttempts <= 0 {
		e.Executor.MaxAttempts = 3
	}
	if e.Executor.BaseDelay <= 0 {
		e.Executor.BaseDelay = Duration(time.Second)
	}
	if e.Executor.MaxDelay <= 0 {
		e.Executor.MaxDelay = Duration(30 * time.Second)
	}
	if e.Executor.BackoffMultiplier <= 0 {
		e.Executor.BackoffMultiplier = 2.0
	}
	if e.Executor.RequestBurst <= 0 {
		e.Executor.RequestBurst = 1
	}
	if e.Scoring.BatchSize <= 0 {
		e.Scoring.BatchSize = 8
	}
	if e.Orchestrator.BatchSize <= 0 {
		e.Orchestrator.BatchSize = 16
	}
	if e.Orchestrator.ProgressInterval <= 0 {
		e.Orchestrator.ProgressInterval = 5
	}
	if e.Orchestrator.NotificationQueueLen <= 0 {
		e.Orchestrator.NotificationQueueLen = 256
	}
	if e.Orchestrator.SchedulerTick <= 0 {
		e.Orchestrator.SchedulerTick = Duration(10 * time.Second)
	}
	if e.Resources.Default.MaxConcurrency <= 0 {
		e.Resources.Default.MaxConcurrency = 8
	}
	if e.Resources.Default.MaxDuration <= 0 {
		e.Resources.Default.MaxDuration = Duration(2 * time.Hour)
	}
	if e.Cache.TTL <= 0 {
		e.Cache.TTL = Duration(5 * time.Minute)
	}
}
