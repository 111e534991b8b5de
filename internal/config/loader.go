// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	// 匹配 ${VAR} 或 ${VAR:default}
	// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
	re := envPattern
	return re.ReplaceAllStringFunc(s, func(match string) string {
		submatch := re.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		val, ok := os.LookupEnv(key)
		if ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match // 保留原样以便识别未定义的变量
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "recall-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "recall")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.query_timeout", "5s")
	v.SetDefault("database.postgres.text_search_config", "simple")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	// Milvus 默认值
	v.SetDefault("vector.milvus.enabled", true)
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "recall")
	v.SetDefault("vector.milvus.index_type", "HNSW")
	v.SetDefault("vector.milvus.metric_type", "COSINE")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 64)
	v.SetDefault("vector.milvus.search_timeout", "5s")

	// LLM 默认值
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.tiers.default", "gpt-4o-mini")
	v.SetDefault("llm.tiers.large_context", "gpt-4.1")
	v.SetDefault("llm.tiers.deep_reasoning", "o3")

	// Embedding 默认值
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout", "15s")
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("embedding.cache_ttl", "24h")
	v.SetDefault("embedding.token.timeout", "10s")

	// 消息队列默认值
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "recall")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "2s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 摄取默认值
	v.SetDefault("ingestion.summary_min_chars", 1000)
	v.SetDefault("ingestion.max_token_embedded_chunks", 64)
	v.SetDefault("ingestion.job_timeout", "10m")
	v.SetDefault("ingestion.max_content_bytes", 10<<20)

	// 分块默认值
	v.SetDefault("chunking.topic_window", "10m")
	v.SetDefault("chunking.topic_segments", 6)
	v.SetDefault("chunking.detail_target_tokens", 750)
	v.SetDefault("chunking.detail_max_tokens", 1000)
	v.SetDefault("chunking.overlap_tokens", 100)

	// 检索默认值
	v.SetDefault("retrieval.dense_weight", 0.5)
	v.SetDefault("retrieval.lexical_weight", 0.25)
	v.SetDefault("retrieval.lexical_rank_scale", 10.0)
	v.SetDefault("retrieval.rerank_fusion_weight", 0.6)
	v.SetDefault("retrieval.rerank_maxsim_weight", 0.4)
	v.SetDefault("retrieval.candidate_multiplier", 2)
	v.SetDefault("retrieval.rerank_min_candidates", 5)
	v.SetDefault("retrieval.default_top_k", 10)
	v.SetDefault("retrieval.max_top_k", 100)

	// 路由默认值
	v.SetDefault("routing.document_lookup_limit", 5)
	v.SetDefault("routing.speaker_chunk_limit", 20)
	v.SetDefault("routing.temporal_chunk_limit", 200)

	// 模糊匹配默认值
	v.SetDefault("fuzzy.threshold", 0.6)
	v.SetDefault("fuzzy.candidate_limit", 10)

	// 推理默认值
	v.SetDefault("reasoning.enabled", true)
	v.SetDefault("reasoning.max_related", 5)
	v.SetDefault("reasoning.chunk_scan_limit", 50)

	// 回答默认值
	v.SetDefault("answer.quality_threshold", 0.7)
	v.SetDefault("answer.neutral_quality", 0.8)
	v.SetDefault("answer.context_chunks", 10)
	v.SetDefault("answer.large_context_tokens", 50000)
	v.SetDefault("answer.branch_timeout", "8s")
	v.SetDefault("answer.generate_timeout", "90s")
	v.SetDefault("answer.judge_timeout", "20s")
	v.SetDefault("answer.reminder_min_attempts", 2)
	v.SetDefault("answer.reminder_max_overlap", 0.3)

	// 会话默认值
	v.SetDefault("session.ttl", "24h")

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9464)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.jwt.enabled", false)
	v.SetDefault("security.jwt.issuer", "recall-api")
	v.SetDefault("security.jwt.expiration", "720h")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.burst", 40)
}

// Validate 校验调优参数的取值范围
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.DenseWeight < 0 || r.LexicalWeight < 0 {
		return fmt.Errorf("retrieval fusion weights must be non-negative")
	}
	if r.RerankFusionWeight < 0 || r.RerankMaxSimWeight < 0 {
		return fmt.Errorf("retrieval rerank weights must be non-negative")
	}
	if c.Answer.QualityThreshold < 0 || c.Answer.QualityThreshold > 1 {
		return fmt.Errorf("answer.quality_threshold must be within [0,1], got %v", c.Answer.QualityThreshold)
	}
	if c.Answer.NeutralQuality < 0 || c.Answer.NeutralQuality > 1 {
		return fmt.Errorf("answer.neutral_quality must be within [0,1], got %v", c.Answer.NeutralQuality)
	}
	if c.Fuzzy.Threshold < 0 || c.Fuzzy.Threshold > 1 {
		return fmt.Errorf("fuzzy.threshold must be within [0,1], got %v", c.Fuzzy.Threshold)
	}
	if c.Security.JWT.Enabled && c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is required when jwt is enabled")
	}
	return nil
}
