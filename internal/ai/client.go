package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"rankjuice/internal/scoring"
)

// Generator produces listing copy drafts from tiered keywords.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, input GenerationInput) (GeneratedDraft, error)
}

// Config holds OpenAI configuration parameters.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// GenerationInput describes the signals that feed a draft generation call.
type GenerationInput struct {
	ProductName     string
	Category        string
	Marketplace     string
	Tiers           scoring.KeywordTiers
	TitleCharLimit  int
	BulletCount     int
	BulletCharLimit int
	Variant         int
}

// Client implements the Generator interface against the OpenAI API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

var ErrDisabled = errors.New("ai generator disabled")

// NewClient constructs a Client if the supplied configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
	}
	return client, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Generate requests AI-written listing copy for the supplied keyword tiers.
func (c *Client) Generate(ctx context.Context, input GenerationInput) (GeneratedDraft, error) {
	if c == nil || !c.Enabled() {
		return GeneratedDraft{}, ErrDisabled
	}

	payload := c.buildPayload(input)
	body, err := json.Marshal(payload)
	if err != nil {
		return GeneratedDraft{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return GeneratedDraft{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GeneratedDraft{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return GeneratedDraft{}, fmt.Errorf("openai status %d: %v", resp.StatusCode, apiErr)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return GeneratedDraft{}, fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return GeneratedDraft{}, errors.New("openai empty response")
	}

	content := normalizeJSONBlock(decoded.Choices[0].Message.Content)
	if content == "" {
		return GeneratedDraft{}, errors.New("openai empty draft")
	}

	var draft GeneratedDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return GeneratedDraft{}, fmt.Errorf("parse ai response: %w", err)
	}

	sanitizeDraft(&draft, input)
	if draft.Title == "" {
		return GeneratedDraft{}, errors.New("ai draft title missing")
	}
	if len(draft.Bullets) == 0 {
		return GeneratedDraft{}, errors.New("ai draft bullets missing")
	}

	draft.Source = "openai:" + c.model
	return draft, nil
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if strings.HasSuffix(trimmed, "```") {
			trimmed = trimmed[:len(trimmed)-3]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

func (c *Client) buildPayload(input GenerationInput) map[string]any {
	systemPrompt := fmt.Sprintf(
		"You are a marketplace listing copywriter. Reply with a strict JSON object containing keys title, bullets, description, and backend_terms. "+
			"title must be a single line of at most %d characters that reads naturally, opens with the product and its highest-volume keywords, and never uses the characters !, ?, $ or all-caps words. "+
			"bullets must be an array of exactly %d strings, each at most %d characters, each opening with a concrete benefit and weaving in its assigned keywords without repeating any word more than twice. "+
			"description must be three to five flowing sentences that naturally pick up the remaining keywords; do not enumerate them. "+
			"backend_terms must be lowercase single words separated by single spaces, none of which already appear in the title or bullets. "+
			"Write in the primary language of the target marketplace. Never invent claims such as cure, FDA approved or best seller. Emit nothing outside the JSON object.",
		input.TitleCharLimit, input.BulletCount, input.BulletCharLimit,
	)
	messages := []map[string]string{
		{
			"role":    "system",
			"content": systemPrompt,
		},
		{
			"role":    "user",
			"content": c.buildUserPrompt(input),
		},
	}
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}
	return payload
}

func (c *Client) buildUserPrompt(input GenerationInput) string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "Product: %s\n", strings.TrimSpace(input.ProductName))
	if input.Category != "" {
		fmt.Fprintf(builder, "Category: %s\n", strings.TrimSpace(input.Category))
	}
	fmt.Fprintf(builder, "Marketplace: %s\n", strings.TrimSpace(input.Marketplace))
	if phrases := phraseList(input.Tiers.Title); phrases != "" {
		fmt.Fprintf(builder, "Title keywords (highest search volume first): %s\n", phrases)
	}
	if phrases := phraseList(input.Tiers.Bullets); phrases != "" {
		fmt.Fprintf(builder, "Bullet keywords: %s\n", phrases)
	}
	if phrases := phraseList(input.Tiers.Description); phrases != "" {
		fmt.Fprintf(builder, "Description keywords: %s\n", phrases)
	}
	if phrases := phraseList(input.Tiers.Backend); phrases != "" {
		fmt.Fprintf(builder, "Backend candidates (keep out of the visible copy): %s\n", phrases)
	}
	fmt.Fprintf(builder, "Title character limit: %d\n", input.TitleCharLimit)
	fmt.Fprintf(builder, "Bullets: exactly %d, each at most %d characters\n", input.BulletCount, input.BulletCharLimit)
	builder.WriteString("Every title and bullet keyword must appear verbatim somewhere in the visible copy; description keywords may be reworded as long as their words all appear.\n")
	if input.Variant > 0 {
		fmt.Fprintf(builder, "This is draft variant %d: take a different angle than an obvious first draft, reorder the benefits and vary the sentence openers while keeping every keyword.\n", input.Variant)
	}
	return builder.String()
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func sanitizeDraft(draft *GeneratedDraft, input GenerationInput) {
	if draft == nil {
		return
	}
	draft.Title = collapseLine(draft.Title)
	if input.TitleCharLimit > 0 {
		draft.Title = clipRunes(draft.Title, input.TitleCharLimit)
	}

	bullets := make([]string, 0, len(draft.Bullets))
	for _, bullet := range draft.Bullets {
		bullet = collapseLine(bullet)
		if bullet == "" {
			continue
		}
		if input.BulletCharLimit > 0 {
			bullet = clipRunes(bullet, input.BulletCharLimit)
		}
		bullets = append(bullets, bullet)
		if input.BulletCount > 0 && len(bullets) == input.BulletCount {
			break
		}
	}
	draft.Bullets = bullets

	draft.Description = strings.TrimSpace(draft.Description)
	draft.BackendTerms = strings.Join(strings.Fields(strings.ToLower(draft.BackendTerms)), " ")
}

func collapseLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clipRunes shortens s to at most limit runes, backing up to the last word
// boundary so no keyword is cut in half.
func clipRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func phraseList(keywords []scoring.Keyword) string {
	var phrases []string
	for _, keyword := range keywords {
		phrase := strings.TrimSpace(keyword.Phrase)
		if phrase == "" {
			continue
		}
		phrases = append(phrases, phrase)
	}
	return strings.Join(phrases, ", ")
}
