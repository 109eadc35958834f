package tracking

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/headtrack/internal/httputil"
)

// AttachAdminRoutes registers the tracker debug page under /debug/tracker.
func (t *Tracker) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tracker", "Head tracker status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireGet(w, r) {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, t.Status())
	})
}
