package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ExtractUserID reads user_id from a JSON body, a multipart form, a
// urlencoded form or the query string, in that order. The body is restored
// for the handler.
func ExtractUserID(r *http.Request) (string, error) {
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		r.Body.Close()
		restore := func() { r.Body = io.NopCloser(bytes.NewReader(body)) }
		restore()

		var reqMap map[string]interface{}
		if err := json.Unmarshal(body, &reqMap); err == nil {
			if userID, ok := reqMap["user_id"].(string); ok && userID != "" {
				return userID, nil
			}
		}

		ct := strings.ToLower(r.Header.Get("Content-Type"))
		switch {
		case strings.Contains(ct, "multipart/form-data"):
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				if userID := r.FormValue("user_id"); userID != "" {
					restore()
					return userID, nil
				}
			}
		case strings.Contains(ct, "application/x-www-form-urlencoded"):
			if err := r.ParseForm(); err == nil {
				if userID := r.PostFormValue("user_id"); userID != "" {
					restore()
					return userID, nil
				}
			}
		}
		restore()
	}

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("user_id not found in request")
}

// NormalizeString trims whitespace and lowercases for comparisons.
func NormalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
