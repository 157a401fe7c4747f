package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/pkg/config"
)

func configFor(provider string) config.SMSConfig {
	return config.SMSConfig{Provider: provider, BaseURL: "http://localhost", APIKey: "key", SenderID: "Hijaz"}
}

func TestTermiiSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sms/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message_id":"1"}`))
	}))
	defer srv.Close()

	cfg := configFor("termii")
	cfg.BaseURL = srv.URL + "/"
	s, err := NewSender(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "2348012345678", "hello"))
	assert.Equal(t, "2348012345678", got["to"])
	assert.Equal(t, "key", got["api_key"])
	assert.Equal(t, "Hijaz", got["from"])
}

func TestKudiSenderChecksStatus(t *testing.T) {
	status := "success"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "message": "insufficient units"})
	}))
	defer srv.Close()

	cfg := configFor("kudisms")
	cfg.BaseURL = srv.URL
	s, err := NewSender(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "2348012345678", "hello"))

	status = "error"
	err = s.Send(context.Background(), "2348012345678", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient units")
}

func TestGatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := configFor("termii")
	cfg.BaseURL = srv.URL
	s, err := NewSender(cfg)
	require.NoError(t, err)
	assert.Error(t, s.Send(context.Background(), "2348012345678", "hello"))
}
