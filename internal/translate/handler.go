package translate

import (
	"encoding/json"
	"net/http"
)

// request and response are the /translate endpoint wire shapes.
type request struct {
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

// Handler returns the HTTP handler for POST /translate. The endpoint always
// answers 200 with some text: a failed translation degrades to echoing the
// input rather than surfacing an error the chat UI would have to handle.
func Handler(c *Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		translated := c.Translate(r.Context(), req.Text, req.TargetLang)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response{TranslatedText: translated})
	})
}
