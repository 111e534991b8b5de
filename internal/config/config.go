// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Ingestion     IngestionConfig     `yaml:"ingestion" mapstructure:"ingestion"`
	Chunking      ChunkingConfig      `yaml:"chunking" mapstructure:"chunking"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Routing       RoutingConfig       `yaml:"routing" mapstructure:"routing"`
	Fuzzy         FuzzyConfig         `yaml:"fuzzy" mapstructure:"fuzzy"`
	Reasoning     ReasoningConfig     `yaml:"reasoning" mapstructure:"reasoning"`
	Answer        AnswerConfig        `yaml:"answer" mapstructure:"answer"`
	Session       SessionConfig       `yaml:"session" mapstructure:"session"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	// QueryTimeout 单次查询超时，超时视为该分支失败
	QueryTimeout time.Duration `yaml:"query_timeout" mapstructure:"query_timeout"`
	// TextSearchConfig 全文检索配置名（simple/german/english）
	TextSearchConfig string `yaml:"text_search_config" mapstructure:"text_search_config"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	Host               string        `yaml:"host" mapstructure:"host"`
	Port               int           `yaml:"port" mapstructure:"port"`
	User               string        `yaml:"user" mapstructure:"user"`
	Password           string        `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string        `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	IndexType          string        `yaml:"index_type" mapstructure:"index_type"`
	MetricType         string        `yaml:"metric_type" mapstructure:"metric_type"`
	HNSWM              int           `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int           `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int           `yaml:"search_ef" mapstructure:"search_ef"`
	SearchTimeout      time.Duration `yaml:"search_timeout" mapstructure:"search_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Tiers           LLMTiersConfig            `yaml:"tiers" mapstructure:"tiers"`
	// Judge 质量评审使用的模型（为空时使用 default 档位）
	Judge string `yaml:"judge" mapstructure:"judge"`
}

// LLMTiersConfig 模型档位，值为 "provider/model" 或仅模型名（使用默认 provider）
type LLMTiersConfig struct {
	Default       string `yaml:"default" mapstructure:"default"`
	LargeContext  string `yaml:"large_context" mapstructure:"large_context"`
	DeepReasoning string `yaml:"deep_reasoning" mapstructure:"deep_reasoning"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Workers 批量向量化并发数
	Workers int `yaml:"workers" mapstructure:"workers"`
	// CacheTTL 查询向量缓存时长，0 表示不缓存
	CacheTTL time.Duration        `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Token    TokenEmbeddingConfig `yaml:"token" mapstructure:"token"`
}

// TokenEmbeddingConfig 词元级（late-interaction）向量服务配置
type TokenEmbeddingConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// IngestionConfig 摄取配置
type IngestionConfig struct {
	// SummaryMinChars 超过该长度才生成摘要
	SummaryMinChars int `yaml:"summary_min_chars" mapstructure:"summary_min_chars"`
	// MaxTokenEmbeddedChunks 每个文档最多附加词元级向量的细节块数量
	MaxTokenEmbeddedChunks int           `yaml:"max_token_embedded_chunks" mapstructure:"max_token_embedded_chunks"`
	JobTimeout             time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
	MaxContentBytes        int           `yaml:"max_content_bytes" mapstructure:"max_content_bytes"`
}

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	TopicWindow        time.Duration `yaml:"topic_window" mapstructure:"topic_window"`
	TopicSegments      int           `yaml:"topic_segments" mapstructure:"topic_segments"`
	DetailTargetTokens int           `yaml:"detail_target_tokens" mapstructure:"detail_target_tokens"`
	DetailMaxTokens    int           `yaml:"detail_max_tokens" mapstructure:"detail_max_tokens"`
	OverlapTokens      int           `yaml:"overlap_tokens" mapstructure:"overlap_tokens"`
}

// RetrievalConfig 混合检索配置
type RetrievalConfig struct {
	DenseWeight         float64 `yaml:"dense_weight" mapstructure:"dense_weight"`
	LexicalWeight       float64 `yaml:"lexical_weight" mapstructure:"lexical_weight"`
	LexicalRankScale    float64 `yaml:"lexical_rank_scale" mapstructure:"lexical_rank_scale"`
	RerankFusionWeight  float64 `yaml:"rerank_fusion_weight" mapstructure:"rerank_fusion_weight"`
	RerankMaxSimWeight  float64 `yaml:"rerank_maxsim_weight" mapstructure:"rerank_maxsim_weight"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" mapstructure:"candidate_multiplier"`
	RerankMinCandidates int     `yaml:"rerank_min_candidates" mapstructure:"rerank_min_candidates"`
	DefaultTopK         int     `yaml:"default_top_k" mapstructure:"default_top_k"`
	MaxTopK             int     `yaml:"max_top_k" mapstructure:"max_top_k"`
}

// RoutingConfig 意图路由配置
type RoutingConfig struct {
	// FullDocumentIndicators 需要完整原文的提示词
	FullDocumentIndicators []string `yaml:"full_document_indicators" mapstructure:"full_document_indicators"`
	MediaWords             []string `yaml:"media_words" mapstructure:"media_words"`
	DocumentLookupLimit    int      `yaml:"document_lookup_limit" mapstructure:"document_lookup_limit"`
	SpeakerChunkLimit      int      `yaml:"speaker_chunk_limit" mapstructure:"speaker_chunk_limit"`
	TemporalChunkLimit     int      `yaml:"temporal_chunk_limit" mapstructure:"temporal_chunk_limit"`
}

// FuzzyConfig 模糊匹配配置
type FuzzyConfig struct {
	// AliasFile 别名表路径，为空时使用内置表
	AliasFile      string  `yaml:"alias_file" mapstructure:"alias_file"`
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"`
	CandidateLimit int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
}

// ReasoningConfig 跨文档推理配置
type ReasoningConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MaxRelated int  `yaml:"max_related" mapstructure:"max_related"`
	// KnownEntities 查询中大小写不敏感识别的实体名
	KnownEntities []string `yaml:"known_entities" mapstructure:"known_entities"`
	// ChunkScanLimit 每个文档参与模式检测的片段上限
	ChunkScanLimit int `yaml:"chunk_scan_limit" mapstructure:"chunk_scan_limit"`
}

// AnswerConfig 回答编排配置
type AnswerConfig struct {
	QualityThreshold  float64       `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	NeutralQuality    float64       `yaml:"neutral_quality" mapstructure:"neutral_quality"`
	ContextChunks     int           `yaml:"context_chunks" mapstructure:"context_chunks"`
	LargeContextToken int           `yaml:"large_context_tokens" mapstructure:"large_context_tokens"`
	BranchTimeout     time.Duration `yaml:"branch_timeout" mapstructure:"branch_timeout"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout" mapstructure:"generate_timeout"`
	JudgeTimeout      time.Duration `yaml:"judge_timeout" mapstructure:"judge_timeout"`
	// ReminderMinAttempts 提醒原始问题所需的最少检索次数
	ReminderMinAttempts int `yaml:"reminder_min_attempts" mapstructure:"reminder_min_attempts"`
	// ReminderMaxOverlap 关键词重合度低于该值时提醒
	ReminderMaxOverlap float64 `yaml:"reminder_max_overlap" mapstructure:"reminder_max_overlap"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	Issuer     string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration time.Duration `yaml:"expiration" mapstructure:"expiration"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
