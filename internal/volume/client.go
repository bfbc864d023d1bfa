package volume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config drives the search-volume client behaviour.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Estimate is the monthly search volume reported for a phrase.
type Estimate struct {
	Phrase      string
	Marketplace string
	Monthly     int
	Checked     bool
}

// Client performs search-volume lookups with basic caching and rate limiting.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cacheTTL   time.Duration
	cache      sync.Map // map[string]cacheEntry
}

type cacheEntry struct {
	at     time.Time
	result Estimate
}

// ErrMissingAPIKey is returned when the client cannot authenticate.
var ErrMissingAPIKey = errors.New("volume client missing api key")

// NewClient constructs a search-volume client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://data.rankjuice.io/v1/search-volume"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		cacheTTL:   ttl,
	}, nil
}

// Lookup fetches the monthly search volume for the supplied phrase.
func (c *Client) Lookup(ctx context.Context, marketplace, phrase string) (Estimate, error) {
	if c == nil {
		return Estimate{}, errors.New("volume client is nil")
	}

	term := strings.ToLower(strings.TrimSpace(phrase))
	if term == "" {
		return Estimate{}, nil
	}
	market := strings.ToLower(strings.TrimSpace(marketplace))
	key := market + "|" + term

	if entry, ok := c.cache.Load(key); ok {
		cached := entry.(cacheEntry)
		if time.Since(cached.at) < c.cacheTTL {
			return cached.result, nil
		}
		c.cache.Delete(key)
	}

	result, err := c.performRequest(ctx, market, term)
	if err != nil {
		return Estimate{}, err
	}

	c.cache.Store(key, cacheEntry{at: time.Now(), result: result})
	return result, nil
}

// LookupAll resolves volumes for each phrase, keyed by the phrase as supplied.
// Phrases that error or come back unknown are left out of the result.
func (c *Client) LookupAll(ctx context.Context, marketplace string, phrases []string) map[string]int {
	out := make(map[string]int)
	for _, phrase := range phrases {
		if ctx.Err() != nil {
			return out
		}
		estimate, err := c.Lookup(ctx, marketplace, phrase)
		if err != nil {
			continue
		}
		if estimate.Checked && estimate.Monthly > 0 {
			out[phrase] = estimate.Monthly
		}
	}
	return out
}

func (c *Client) performRequest(ctx context.Context, marketplace, term string) (Estimate, error) {
	params := url.Values{}
	params.Set("phrase", term)
	if marketplace != "" {
		params.Set("marketplace", marketplace)
	}

	endpoint := c.baseURL
	if strings.Contains(endpoint, "?") {
		endpoint = endpoint + "&" + params.Encode()
	} else {
		endpoint = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Estimate{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Estimate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// back off for 5 seconds and retry once
		select {
		case <-ctx.Done():
			return Estimate{}, ctx.Err()
		case <-time.After(5 * time.Second):
		}
		resp.Body.Close()
		retryReq, retryErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if retryErr != nil {
			return Estimate{}, retryErr
		}
		retryReq.Header = req.Header.Clone()
		resp, err = c.httpClient.Do(retryReq)
		if err != nil {
			return Estimate{}, err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("volume api status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Estimate{}, fmt.Errorf("decode volume response: %w", err)
	}

	cleanTerm := cleanKey(term)
	estimate := Estimate{Phrase: term, Marketplace: marketplace, Checked: true}
	for i, item := range payload.Results {
		if i == 0 {
			estimate.Monthly = item.MonthlyVolume
		}
		if cleanKey(item.Phrase) == cleanTerm {
			estimate.Monthly = item.MonthlyVolume
			break
		}
	}
	return estimate, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Phrase        string `json:"phrase"`
	Marketplace   string `json:"marketplace"`
	MonthlyVolume int    `json:"monthly_volume"`
}

func cleanKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
