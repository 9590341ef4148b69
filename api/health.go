package api

import "net/http"

// HealthHandler reports the last heartbeat result of every resource. Any
// failing resource turns the response into a 503.
func HealthHandler(status func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resources := map[string]string{}
		if status != nil {
			resources = status()
		}
		code := http.StatusOK
		for _, s := range resources {
			if s != "ok" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		RespondWithJSON(w, code, map[string]interface{}{
			"success":   code == http.StatusOK,
			"resources": resources,
		})
	}
}
