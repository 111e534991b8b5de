// Package embedding 向量网关：稠密向量、词元级向量与查询向量缓存
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recall-api/internal/config"
	"recall-api/internal/domain/entity"
)

// TokenClient 词元级（late-interaction）向量服务客户端
type TokenClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type tokenRequest struct {
	Text string `json:"text"`
}

type tokenResponse struct {
	Tokens  []string    `json:"tokens"`
	Vectors [][]float32 `json:"vectors"`
}

// NewTokenClient 未配置 endpoint 时返回 nil
func NewTokenClient(cfg *config.TokenEmbeddingConfig) *TokenClient {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EmbedTokens 请求单段文本的词元级向量
func (c *TokenClient) EmbedTokens(ctx context.Context, text string) (*entity.TokenEmbeddings, error) {
	reqBody, err := json.Marshal(&tokenRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token embed request: %w", err)
	}

	u, err := url.Parse(strings.TrimRight(c.endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid token embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed_tokens"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create token embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("token embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("token embedding request failed: status=%d", httpResp.StatusCode)
	}

	var resp tokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode token embed response: %w", err)
	}
	if len(resp.Vectors) == 0 {
		return nil, fmt.Errorf("token embedding response has no vectors")
	}
	return &entity.TokenEmbeddings{Tokens: resp.Tokens, Vectors: resp.Vectors}, nil
}
