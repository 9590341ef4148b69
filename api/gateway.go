package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"TalkToDataLoanPro/api/constants"
	"TalkToDataLoanPro/internal/logger"
)

// maxAuditBody bounds how much of a JSON body is read to find user_id.
const maxAuditBody = 1 << 20

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture status code and, for
// failures, the response body.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode >= 400 && rw.body.Len() < 512 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

// AuditRequests writes one audit line when a request arrives and one when
// it completes, with the caller's user_id when a JSON body carries it.
func AuditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		var userID string
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
			if strings.HasPrefix(r.Header.Get(constants.ContentTypeText), constants.ContentTypeJSON) && r.Body != nil {
				bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
				if err == nil && len(bodyBytes) <= maxAuditBody {
					var bodyMap map[string]interface{}
					if json.Unmarshal(bodyBytes, &bodyMap) == nil {
						userID, _ = bodyMap["user_id"].(string)
					}
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), r.Body))
			}
		}
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		audit(fmt.Sprintf("[Gateway] Incoming request: %s %s from %s userId=%s", r.Method, r.URL.Path, clientIP, userID))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			audit(fmt.Sprintf("[Gateway][ERROR] %s %s status %d in %v: %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start), strings.TrimSpace(rw.body.String())))
		} else {
			audit(fmt.Sprintf("[Gateway] %s %s status %d in %v", r.Method, r.URL.Path, rw.statusCode, time.Since(start)))
		}
	})
}

// RecoverPanics turns a handler panic into a 500 response.
func RecoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				LogError("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				RespondWithError(w, http.StatusInternalServerError, constants.ErrInternalServer)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	audit("[Gateway] [Error] " + r.URL.Path + " from " + extractClientIP(r) + " (route not found)")
	RespondWithError(w, http.StatusNotFound, "route not found")
}

func audit(msg string) {
	if logr := logger.GlobalLogger; logr != nil {
		logr.LogAudit(msg)
		return
	}
	log.Println(msg)
}
