package restapi

import (
	"encoding/json"
	"net/http"

	"metrolive.transitwatch.org/internal/logging"
)

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	setJSONResponseType(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

// errorEnvelope is the uniform error body for non-feed failures. Feed
// failures carry their own contract (stale markers, empty collections) and
// never use this.
type errorEnvelope struct {
	Code        int    `json:"code"`
	Text        string `json:"text"`
	CurrentTime int64  `json:"currentTime"`
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	api.sendJSON(w, r, code, errorEnvelope{
		Code:        code,
		Text:        message,
		CurrentTime: api.Clock.NowUnixMilli(),
	})
}
