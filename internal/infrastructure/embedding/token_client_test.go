package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/config"
)

func TestNewTokenClient_Unconfigured(t *testing.T) {
	assert.Nil(t, NewTokenClient(&config.TokenEmbeddingConfig{}))
}

func TestTokenClient_EmbedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed_tokens", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(tokenResponse{
			Tokens:  []string{req.Text},
			Vectors: [][]float32{{0.1, 0.2}},
		})
	}))
	defer srv.Close()

	c := NewTokenClient(&config.TokenEmbeddingConfig{Endpoint: srv.URL, APIKey: "k"})
	te, err := c.EmbedTokens(context.Background(), "pflege")
	require.NoError(t, err)
	assert.Equal(t, []string{"pflege"}, te.Tokens)
	assert.Equal(t, [][]float32{{0.1, 0.2}}, te.Vectors)
}

func TestTokenClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewTokenClient(&config.TokenEmbeddingConfig{Endpoint: srv.URL})
	_, err := c.EmbedTokens(context.Background(), "x")
	assert.ErrorContains(t, err, "status=502")
}
