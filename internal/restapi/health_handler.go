package restapi

import (
	"encoding/json"
	"net/http"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler reports liveness and feed freshness. Missing feed
// credentials and stale data are reported as detail, not as failure: the
// server itself is healthy and keeps serving its stale-or-empty contract.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.FeedCache == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "feed cache not initialized",
		})
		return
	}

	resp := HealthResponse{Status: "ok"}

	if api.Config.FeedAPIKey == "" || api.Config.FeedURL == "" {
		resp.Detail = "feed credentials not configured"
	} else if snapshot, fetchedAt := api.FeedCache.Peek(); snapshot != nil {
		if NewStaleDetector().Check(fetchedAt, api.Clock.Now()) {
			resp.Detail = "feed data is stale"
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
