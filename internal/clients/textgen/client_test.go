package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "TSLA exposure exceeds the limit."}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "key123", Model: "gpt-4o-mini"}, zerolog.Nop())

	out, err := client.Generate(context.Background(), PurposeAnalysis, "Explain the violation")
	require.NoError(t, err)

	assert.Equal(t, "TSLA exposure exceeds the limit.", out)
	assert.Equal(t, "Bearer key123", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "compliance analyst")
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "m"}, zerolog.Nop())
	_, err := client.Generate(context.Background(), PurposeAnalysis, "x")
	assert.Error(t, err)
}

func TestGenerate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "m"}, zerolog.Nop())
	_, err := client.Generate(context.Background(), PurposeEmailDraft, "x")
	assert.Error(t, err)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "m", Timeout: 20 * time.Millisecond}, zerolog.Nop())
	_, err := client.Generate(context.Background(), PurposeRecommendation, "x")
	assert.Error(t, err)
}

func TestGenerate_NotConfigured(t *testing.T) {
	client := NewClient(Config{}, zerolog.Nop())
	assert.False(t, client.Enabled())

	_, err := client.Generate(context.Background(), PurposeAnalysis, "x")
	assert.Error(t, err)
}
