// Package translate proxies chat text to a Google-Translate-v2-compatible
// upstream. It is strictly best-effort glue around the pairing core: any
// upstream or cache failure falls back to the original text, and nothing
// here ever touches engine state.
package translate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// cachePrefix is the Redis key prefix for cached translations.
	cachePrefix = "translate:"

	// cacheTTL bounds how long a cached translation lives. Chat text is
	// repetitive (greetings, slang), so even a short TTL saves most calls.
	cacheTTL = 24 * time.Hour

	defaultTimeout = 5 * time.Second
)

// Client calls the translation upstream, with an optional Redis cache in
// front. A nil Redis client disables caching; a nil HTTP client gets a
// default with a 5s timeout.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
	rdb    *redis.Client
}

// NewClient creates a translation client. rdb may be nil to run uncached.
func NewClient(apiURL, apiKey string, rdb *redis.Client) *Client {
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultTimeout},
		rdb:    rdb,
	}
}

// cacheKey hashes text+lang so arbitrary chat text never lands in a key.
func cacheKey(text, targetLang string) string {
	h := sha256.Sum256([]byte(targetLang + ":" + text))
	return fmt.Sprintf("%s%x", cachePrefix, h[:16])
}

// upstream request/response shapes for the Translate v2 API.
type upstreamRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
}

type upstreamResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate returns text rendered into targetLang. It never returns an
// error to the caller's user: on any failure the original text comes back
// unchanged, which is the contract the chat client depends on.
func (c *Client) Translate(ctx context.Context, text, targetLang string) string {
	if text == "" || targetLang == "" || c.apiURL == "" {
		return text
	}

	key := cacheKey(text, targetLang)
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
			return cached
		}
		// redis.Nil and transport errors both mean "ask the upstream".
	}

	translated, err := c.callUpstream(ctx, text, targetLang)
	if err != nil {
		log.Printf("[translate] upstream failed (using original text): %v", err)
		return text
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, translated, cacheTTL).Err(); err != nil {
			log.Printf("[translate] cache set failed: %v", err)
		}
	}
	return translated
}

// callUpstream performs one translation API call.
func (c *Client) callUpstream(ctx context.Context, text, targetLang string) (string, error) {
	body, err := json.Marshal(upstreamRequest{Q: text, Target: targetLang})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.apiURL
	if c.apiKey != "" {
		url += "?key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var out upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("empty translations in response")
	}
	return out.Data.Translations[0].TranslatedText, nil
}
