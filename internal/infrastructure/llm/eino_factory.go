package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"recall-api/internal/config"
	apperrors "recall-api/pkg/errors"
)

// servedModel 已配置可用的模型
type servedModel struct {
	provider string
	model    string
}

// EinoFactory 管理多个 Eino ChatModel 客户端实例，按模型名惰性创建
type EinoFactory struct {
	config *config.LLMConfig
	served map[string]servedModel
	names  []string
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	f := &EinoFactory{
		config: &cfg.LLM,
		served: make(map[string]servedModel),
		models: make(map[string]model.BaseChatModel),
	}

	tiers := cfg.LLM.Tiers
	for _, name := range []string{tiers.Default, tiers.LargeContext, tiers.DeepReasoning, cfg.LLM.Judge} {
		f.register(name)
	}
	for provider, p := range cfg.LLM.Providers {
		if p.Model != "" {
			f.register(provider + "/" + p.Model)
		}
	}
	sort.Strings(f.names)
	return f
}

// register 登记模型名；"provider/model" 同时以裸模型名登记
func (f *EinoFactory) register(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	sm, ok := f.parse(name)
	if !ok {
		return
	}
	if _, exists := f.served[sm.model]; !exists {
		f.served[sm.model] = sm
		f.names = append(f.names, sm.model)
	}
	f.served[sm.provider+"/"+sm.model] = sm
}

func (f *EinoFactory) parse(name string) (servedModel, bool) {
	provider, modelName := f.config.DefaultProvider, name
	if i := strings.Index(name, "/"); i > 0 {
		provider, modelName = name[:i], name[i+1:]
	}
	if _, ok := f.config.Providers[provider]; !ok || modelName == "" {
		return servedModel{}, false
	}
	return servedModel{provider: provider, model: modelName}, true
}

// Served 返回可用模型名（已排序）
func (f *EinoFactory) Served() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Supports 模型是否可用
func (f *EinoFactory) Supports(name string) bool {
	_, ok := f.served[strings.TrimSpace(name)]
	return ok
}

// Get 获取指定模型的 ChatModel，未指定时返回默认档位
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = f.config.Tiers.Default
	}

	sm, ok := f.served[name]
	if !ok {
		return nil, apperrors.ErrModelUnsupported.WithDetail(name)
	}
	key := sm.provider + "/" + sm.model

	f.mu.RLock()
	m, ok := f.models[key]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[key]; ok {
		return m, nil
	}

	providerCfg := f.config.Providers[sm.provider]
	modelCfg := &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		Model:   sm.model,
		Timeout: providerCfg.Timeout,
	}
	// 推理模型不接受 temperature 与 max_tokens
	if !isReasoningModel(sm.model) {
		if providerCfg.MaxTokens > 0 {
			modelCfg.MaxTokens = ptr(providerCfg.MaxTokens)
		}
		modelCfg.Temperature = ptr(float32(providerCfg.Temperature))
	}

	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", key, err)
	}

	f.models[key] = chatModel
	return chatModel, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

func isReasoningModel(name string) bool {
	for _, p := range []string{"o1", "o3", "o4"} {
		if name == p || strings.HasPrefix(name, p+"-") {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
