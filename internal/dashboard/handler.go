package dashboard

import (
	"encoding/json"
	"net/http"
)

// Handler returns a net/http handler serving the current snapshot as
// JSON. It only ever calls Snapshot(), so it can never mutate engine
// state.
func (d *Dashboard) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			d.logger.Error("dashboard handler: failed to encode snapshot", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
