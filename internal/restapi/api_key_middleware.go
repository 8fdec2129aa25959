package restapi

import (
	"net/http"
)

// requireAPIKey gates operational endpoints behind the configured API keys.
// The public feed endpoints stay open; only applied when keys are configured.
func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendError(w, r, http.StatusUnauthorized, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
