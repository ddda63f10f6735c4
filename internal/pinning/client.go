// Package pinning uploads recordings and incident exports to a Pinata-style
// content-pinning service and returns content-addressed retrieval URLs.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when no credentials are set.
var ErrNotConfigured = errors.New("pinning not configured")

// Config holds the endpoint and credentials.
type Config struct {
	BaseURL   string
	Gateway   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Pin is the result of a successful upload.
type Pin struct {
	CID       string `json:"ipfsHash"`
	Size      int64  `json:"pinSize"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

// Client talks to the pinning API.
type Client struct {
	client  *resty.Client
	gateway string
	enabled bool
	now     func() time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("pinata_api_key", cfg.APIKey).
		SetHeader("pinata_secret_api_key", cfg.APISecret).
		SetTimeout(cfg.Timeout)
	return &Client{
		client:  c,
		gateway: strings.TrimRight(cfg.Gateway, "/"),
		enabled: cfg.APIKey != "" && cfg.APISecret != "",
		now:     time.Now,
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type metadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type options struct {
	CIDVersion int `json:"cidVersion"`
}

// PinFile uploads data as a file named name.
func (c *Client) PinFile(ctx context.Context, name string, data []byte, keyvalues map[string]string) (Pin, error) {
	if !c.enabled {
		return Pin{}, ErrNotConfigured
	}
	meta, _ := json.Marshal(c.metadata(name, "incident-recording", keyvalues))
	opts, _ := json.Marshal(options{CIDVersion: 1})

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(data)).
		SetFormData(map[string]string{
			"pinataMetadata": string(meta),
			"pinataOptions":  string(opts),
		}).
		Post("/pinning/pinFileToIPFS")
	return c.decode(resp, err)
}

// PinJSON uploads content as a JSON document.
func (c *Client) PinJSON(ctx context.Context, name string, content any, keyvalues map[string]string) (Pin, error) {
	if !c.enabled {
		return Pin{}, ErrNotConfigured
	}
	body := map[string]any{
		"pinataContent":  content,
		"pinataMetadata": c.metadata(name, "incident-data", keyvalues),
		"pinataOptions":  options{CIDVersion: 1},
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/pinning/pinJSONToIPFS")
	return c.decode(resp, err)
}

// Seal uploads a finished recording and returns its retrieval URL.
func (c *Client) Seal(ctx context.Context, incidentID, contentType string, data []byte) (string, error) {
	name := fmt.Sprintf("incident-%s.webm", incidentID)
	pin, err := c.PinFile(ctx, name, data, map[string]string{
		"incidentId":  incidentID,
		"contentType": contentType,
	})
	if err != nil {
		return "", err
	}
	return pin.URL, nil
}

// GatewayURL builds the retrieval URL for cid.
func (c *Client) GatewayURL(cid string) string {
	return c.gateway + "/" + cid
}

// TestAuthentication checks the credentials.
func (c *Client) TestAuthentication(ctx context.Context) error {
	if !c.enabled {
		return ErrNotConfigured
	}
	resp, err := c.client.R().SetContext(ctx).Get("/data/testAuthentication")
	if err != nil {
		return fmt.Errorf("pinning request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("pinning auth status %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) metadata(name, kind string, extra map[string]string) metadata {
	kv := map[string]string{
		"type":      kind,
		"timestamp": c.now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		kv[k] = v
	}
	return metadata{Name: name, KeyValues: kv}
}

func (c *Client) decode(resp *resty.Response, err error) (Pin, error) {
	if err != nil {
		return Pin{}, fmt.Errorf("pinning request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Pin{}, fmt.Errorf("pinning status %d: %s", resp.StatusCode(), resp.String())
	}
	var pr pinResponse
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return Pin{}, fmt.Errorf("decode pinning response: %w", err)
	}
	if pr.IpfsHash == "" {
		return Pin{}, errors.New("pinning response missing hash")
	}
	return Pin{CID: pr.IpfsHash, Size: pr.PinSize, Timestamp: pr.Timestamp, URL: c.GatewayURL(pr.IpfsHash)}, nil
}
