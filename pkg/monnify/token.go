package monnify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	// tokens are issued for an hour; keep them for fifty minutes
	tokenSafetyMargin = 600 * time.Second
	tokenEarlyExpiry  = time.Minute
)

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// tokenSource logs in with the API key pair and shares the resulting bearer
// token through the cache so every replica reuses it.
type tokenSource struct {
	c *Client
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.c.timeout)
	defer cancel()

	key := s.c.cacheKey("token")
	if raw, err := s.c.cache.Get(ctx, key); err == nil {
		var tok cachedToken
		if json.Unmarshal(raw, &tok) == nil && s.c.now().Add(tokenEarlyExpiry).Before(tok.Expiry) {
			return &oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer", Expiry: tok.Expiry}, nil
		}
	}

	tok, ttl, err := s.login(ctx)
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(cachedToken{AccessToken: tok.AccessToken, Expiry: tok.Expiry})
	if err := s.c.cache.Set(ctx, key, raw, ttl); err != nil {
		logger.Warn("Failed to cache Monnify token", logger.WithError(err))
	}
	return tok, nil
}

func (s *tokenSource) login(ctx context.Context) (*oauth2.Token, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.c.baseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return nil, 0, err
	}
	creds := base64.StdEncoding.EncodeToString([]byte(s.c.apiKey + ":" + s.c.secretKey))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Accept", "application/json")

	resp, err := s.c.plain.Do(req)
	if err != nil {
		s.c.metrics.Provider("login", "unavailable")
		return nil, 0, &APIError{Operation: "login", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || resp.StatusCode != http.StatusOK || !env.RequestSuccessful {
		s.c.metrics.Provider("login", "failed")
		logger.Error("Monnify auth failed", logger.Fields{"status_code": resp.StatusCode, "message": env.ResponseMessage})
		return nil, 0, &APIError{Operation: "login", StatusCode: resp.StatusCode, Message: env.ResponseMessage}
	}

	var body loginBody
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil || body.AccessToken == "" {
		return nil, 0, &APIError{Operation: "login", Err: fmt.Errorf("missing access token")}
	}

	lifetime := time.Duration(body.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	ttl := lifetime - tokenSafetyMargin
	if ttl < time.Minute {
		ttl = lifetime / 2
	}

	s.c.metrics.Provider("login", "ok")
	return &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.c.now().Add(ttl),
	}, ttl, nil
}
