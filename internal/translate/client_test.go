package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newUpstream starts a fake Translate v2 upstream that answers every request
// with the given text and counts calls.
func newUpstream(t *testing.T, translated string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++

		var req upstreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("upstream got bad body: %v", err)
		}
		if req.Q == "" || req.Target == "" {
			t.Errorf("upstream got incomplete request: %+v", req)
		}

		resp := upstreamResponse{}
		resp.Data.Translations = []struct {
			TranslatedText string `json:"translatedText"`
		}{{TranslatedText: translated}}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestTranslate_Success(t *testing.T) {
	calls := 0
	upstream := newUpstream(t, "hola", &calls)
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key", nil)
	got := c.Translate(context.Background(), "hello", "es")
	if got != "hola" {
		t.Errorf("Translate = %q, want %q", got, "hola")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestTranslate_UpstreamErrorFallsBackToOriginal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "", nil)
	if got := c.Translate(context.Background(), "hello", "es"); got != "hello" {
		t.Errorf("Translate = %q, want original text back", got)
	}
}

func TestTranslate_NoUpstreamConfigured(t *testing.T) {
	c := NewClient("", "", nil)
	if got := c.Translate(context.Background(), "hello", "es"); got != "hello" {
		t.Errorf("Translate = %q, want passthrough with no upstream", got)
	}
}

func TestTranslate_EmptyInputsPassThrough(t *testing.T) {
	calls := 0
	upstream := newUpstream(t, "hola", &calls)
	defer upstream.Close()

	c := NewClient(upstream.URL, "", nil)
	if got := c.Translate(context.Background(), "", "es"); got != "" {
		t.Errorf("empty text = %q, want empty", got)
	}
	if got := c.Translate(context.Background(), "hello", ""); got != "hello" {
		t.Errorf("empty lang = %q, want original", got)
	}
	if calls != 0 {
		t.Errorf("upstream calls = %d, want 0", calls)
	}
}

func TestHandler_TranslateEndpoint(t *testing.T) {
	calls := 0
	upstream := newUpstream(t, "bonjour", &calls)
	defer upstream.Close()

	h := Handler(NewClient(upstream.URL, "", nil))

	body := strings.NewReader(`{"text":"hello","targetLang":"fr"}`)
	req := httptest.NewRequest(http.MethodPost, "/translate", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.TranslatedText != "bonjour" {
		t.Errorf("translatedText = %q, want %q", resp.TranslatedText, "bonjour")
	}
}

func TestHandler_RejectsGet(t *testing.T) {
	h := Handler(NewClient("", "", nil))
	req := httptest.NewRequest(http.MethodGet, "/translate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestCacheKey_DistinguishesLanguages(t *testing.T) {
	if cacheKey("hello", "es") == cacheKey("hello", "fr") {
		t.Error("cache keys must differ per target language")
	}
	if cacheKey("hello", "es") != cacheKey("hello", "es") {
		t.Error("cache key must be deterministic")
	}
}
