package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gaslift-labs/gaslift/internal/config"
	"go.uber.org/zap"
)

type Reason string

const (
	ReasonNotConfigured Reason = "not_configured"
	ReasonAuthFailed    Reason = "auth_failed"
	ReasonNetworkError  Reason = "network_error"
	ReasonInvalidData   Reason = "invalid_data"
)

type UploadError struct {
	Reason Reason
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("content store upload failed (%s): %s", e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("content store upload failed (%s)", e.Reason)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type UploadResult struct {
	Cid string
	Url string
}

const defaultGatewayUrl = "https://gateway.pinata.cloud"

// Client uploads decision backups to an IPFS pinning service. Every caller
// treats failures as best effort; the saga never aborts on an upload error.
type Client struct {
	apiUrl     string
	apiKey     string
	gatewayUrl string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.IpfsConfig, l *zap.Logger) *Client {
	gatewayUrl := cfg.GatewayUrl
	if gatewayUrl == "" {
		gatewayUrl = defaultGatewayUrl
	}
	return &Client{
		apiUrl:     cfg.ApiUrl,
		apiKey:     cfg.ApiKey,
		gatewayUrl: gatewayUrl,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: l,
	}
}

func (c *Client) Configured() bool {
	return c.apiUrl != ""
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	Cid      string `json:"cid"`
}

// UploadJSON pins the payload as JSON and returns its content address.
func (c *Client) UploadJSON(ctx context.Context, payload any) (*UploadResult, error) {
	if c.apiUrl == "" {
		return nil, &UploadError{Reason: ReasonNotConfigured}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &UploadError{Reason: ReasonInvalidData, Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiUrl, bytes.NewReader(body))
	if err != nil {
		return nil, &UploadError{Reason: ReasonNetworkError, Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &UploadError{Reason: ReasonNetworkError, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &UploadError{Reason: ReasonNetworkError, Err: err}
	}

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		return nil, &UploadError{Reason: ReasonAuthFailed, Err: fmt.Errorf("http %d", response.StatusCode)}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &UploadError{Reason: ReasonNetworkError, Err: fmt.Errorf("http %d: %s", response.StatusCode, string(responseBody))}
	}

	parsed := &pinResponse{}
	if err := json.Unmarshal(responseBody, parsed); err != nil {
		return nil, &UploadError{Reason: ReasonInvalidData, Err: err}
	}

	cid := parsed.IpfsHash
	if cid == "" {
		cid = parsed.Cid
	}
	if cid == "" {
		return nil, &UploadError{Reason: ReasonInvalidData, Err: fmt.Errorf("no cid in pinning response")}
	}

	c.logger.Sugar().Debugw("Uploaded decision backup", zap.String("cid", cid))

	return &UploadResult{
		Cid: cid,
		Url: fmt.Sprintf("%s/ipfs/%s", c.gatewayUrl, cid),
	}, nil
}
