package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const tokenPath = "/oauth/v1/generate?grant_type=client_credentials"

// Tokens are refreshed this long before Daraja says they expire.
const expiryLeeway = time.Minute

// tokenCache fetches and caches Daraja access tokens. Daraja's token
// endpoint is a GET with basic auth and returns expires_in as a string, so
// the stock clientcredentials flow does not apply.
type tokenCache struct {
	url    string
	key    string
	secret string
	client *http.Client

	// sem is a one-slot lock that callers can abandon when ctx ends.
	sem chan struct{}
	tok *oauth2.Token
}

func newTokenCache(url, key, secret string, client *http.Client) *tokenCache {
	return &tokenCache{
		url:    url,
		key:    key,
		secret: secret,
		client: client,
		sem:    make(chan struct{}, 1),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Token returns the cached token, fetching a new one bounded by ctx when the
// cached one is missing or about to expire.
func (tc *tokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	select {
	case tc.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("token request: %w", ctx.Err())
	}
	defer func() { <-tc.sem }()

	if tc.tok.Valid() {
		return tc.tok, nil
	}
	tok, err := tc.fetch(ctx)
	if err != nil {
		return nil, err
	}
	tc.tok = tok
	return tok, nil
}

func (tc *tokenCache) fetch(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(tc.key, tc.secret)
	req.Header.Set("Accept", "application/json")

	res, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("token request: status %d: %s", res.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer"}
	if secs, err := strconv.Atoi(tr.ExpiresIn); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs)*time.Second - expiryLeeway)
	}
	return tok, nil
}
