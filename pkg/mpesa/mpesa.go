// Package mpesa is a minimal client for Safaricom's Daraja B2C API, used to
// pay out doctor withdrawals to M-Pesa wallets.
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/echohealth/echo_backend/pkg/payout"
)

const paymentRequestPath = "/mpesa/b2c/v3/paymentrequest"

// Client is a Daraja B2C client. It satisfies payout.Gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *tokenCache
}

var _ payout.Gateway = (*Client)(nil)

// New creates a Client. Access tokens are fetched lazily and cached until
// shortly before they expire.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	cfg.BaseURL = base
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     newTokenCache(base+tokenPath, cfg.ConsumerKey, cfg.ConsumerSecret, httpClient),
	}
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`

	// Error shape returned with 4xx/5xx.
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// RequestPayout submits a B2C payment. The returned reference is Daraja's
// ConversationID. Errors wrap payout.ErrGatewayRejected when Daraja refused
// the request and payout.ErrGatewayUnavailable when the outcome is unknown.
func (c *Client) RequestPayout(ctx context.Context, phone string, amount int64, reference string) (string, error) {
	msisdn, err := normalize(phone, c.cfg.Region)
	if err != nil {
		return "", payout.Rejected("", "", err)
	}
	if amount <= 0 {
		return "", payout.Rejected("", "amount must be positive", nil)
	}

	body, err := json.Marshal(b2cRequest{
		OriginatorConversationID: reference,
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                c.cfg.CommandID,
		Amount:                   amount,
		PartyA:                   c.cfg.ShortCode,
		PartyB:                   msisdn,
		Remarks:                  "Echo Health withdrawal",
		QueueTimeOutURL:          c.cfg.QueueTimeoutURL,
		ResultURL:                c.cfg.ResultURL,
		Occasion:                 reference,
	})
	if err != nil {
		return "", fmt.Errorf("mpesa: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+paymentRequestPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mpesa: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", payout.Unavailable("", "access token unavailable", err)
	}
	tok.SetAuthHeader(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors, client timeouts and ctx deadline.
		return "", payout.Unavailable("", "", err)
	}
	defer res.Body.Close()

	var out b2cResponse
	decodeErr := json.NewDecoder(res.Body).Decode(&out)

	switch {
	case res.StatusCode >= 500, res.StatusCode == http.StatusTooManyRequests, res.StatusCode == http.StatusUnauthorized:
		return "", payout.Unavailable(out.ErrorCode, statusMessage(res, out), nil)
	case res.StatusCode >= 400:
		return "", payout.Rejected(out.ErrorCode, statusMessage(res, out), nil)
	}

	if decodeErr != nil {
		return "", payout.Unavailable("", "undecodable response", decodeErr)
	}
	if out.ResponseCode != "0" {
		return "", payout.Rejected(out.ResponseCode, out.ResponseDescription, nil)
	}

	ref := out.ConversationID
	if ref == "" {
		ref = out.OriginatorConversationID
	}
	if ref == "" {
		return "", payout.Unavailable("", "accepted without a conversation id", errors.New("mpesa: empty reference"))
	}
	return ref, nil
}

func statusMessage(res *http.Response, out b2cResponse) string {
	if out.ErrorMessage != "" {
		return out.ErrorMessage
	}
	return res.Status
}
