package sp

import "context"

// Client is a placeholder for future Selling Partner API integration.
type Client struct{}

// NewClient returns a stub client.
func NewClient() *Client {
	return &Client{}
}

// ListingStatus is a stub implementation returning nil until live integration
// is available.
func (c *Client) ListingStatus(ctx context.Context, sku string) (interface{}, error) {
	return nil, nil
}
