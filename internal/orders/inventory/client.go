package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microstore/microstore/pkg/authsdk"
)

var ErrItemNotFound = errors.New("inventory item not found")

// Item mirrors the inventory service's item payload, limited to the fields
// the orders service reads.
type Item struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// Client calls the inventory service with a self-obtained client-credentials
// token. The token is cached by the TokenSource and refreshed before expiry.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     *authsdk.TokenSource
}

// NewClient creates an inventory client for the given base URL.
func NewClient(baseURL string, tokens *authsdk.TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Tokens: tokens,
	}
}

// GetItem fetches one item by SKU.
func (c *Client) GetItem(ctx context.Context, sku string) (Item, error) {
	var item Item
	err := c.do(ctx, http.MethodGet, "/api/inventory/"+url.PathEscape(sku), nil, &item)
	return item, err
}

// SetQuantity updates the stock level of one item.
func (c *Client) SetQuantity(ctx context.Context, sku string, quantity int64) error {
	body := map[string]int64{"quantity": quantity}
	return c.do(ctx, http.MethodPatch, "/api/inventory/"+url.PathEscape(sku), body, nil)
}

// do performs an authenticated request. A 401 invalidates the cached token
// and retries exactly once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	status, err := c.doOnce(ctx, method, path, body, out)
	if status == http.StatusUnauthorized {
		c.Tokens.Invalidate()
		_, err = c.doOnce(ctx, method, path, body, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) (int, error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to obtain access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, ErrItemNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, fmt.Errorf("inventory request %s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode inventory response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
