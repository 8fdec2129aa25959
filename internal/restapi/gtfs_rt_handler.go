package restapi

import (
	"net/http"
)

// gtfsRTHandler serves the shaped feed snapshot. The cache decides freshness;
// this handler only translates its disposition into the response: X-Cache
// carries HIT/MISS/STALE/UNAVAILABLE, stale payloads still return 200, and a
// cold failure is the only 503.
func (api *RestAPI) gtfsRTHandler(w http.ResponseWriter, r *http.Request) {
	resp, result, status := api.FeedCache.Get(r.Context())

	w.Header().Set("X-Cache", string(result))
	api.sendJSON(w, r, status, resp)
}
