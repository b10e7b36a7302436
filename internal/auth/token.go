package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenFetch = errors.New("token fetch failed")

// TokenProvider supplies a fresh bearer token for each connection
// attempt.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider always returns the same token. Used in tests and
// for pre-issued credentials.
type StaticTokenProvider struct {
	Value string
}

func (p StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.Value, nil
}

// HTTPTokenProvider fetches bearer tokens from an auth endpoint and
// caches them until shortly before expiry.
type HTTPTokenProvider struct {
	tokenURL string
	userID   string
	client   *http.Client

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// expirySkew is subtracted from the token's exp claim so a token is
// never presented moments before it lapses.
const expirySkew = 30 * time.Second

func NewHTTPTokenProvider(tokenURL, userID string) *HTTPTokenProvider {
	return &HTTPTokenProvider{
		tokenURL: tokenURL,
		userID:   userID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (p *HTTPTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.cached != "" && time.Now().Before(p.expiry) {
		token := p.cached
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	body, err := json.Marshal(tokenRequest{UserID: p.userID})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrTokenFetch, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrTokenFetch)
	}

	p.mu.Lock()
	p.cached = tr.Token
	p.expiry = tokenExpiry(tr.Token)
	p.mu.Unlock()

	return tr.Token, nil
}

// tokenExpiry extracts the exp claim without verifying the signature;
// the client only needs it to decide when to refresh. Tokens without a
// readable expiry are treated as already expired so every attempt
// fetches a fresh one.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.Add(-expirySkew)
}
