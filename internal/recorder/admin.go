package recorder

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/headtrack/internal/httputil"
)

// AttachAdminRoutes mounts a tailsql console over the recording database at
// /debug/tailsql/ and a session listing at /debug/recorder.
func (r *Recorder) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+r.path, r.db, &tailsql.DBOptions{
		Label: "Pose recordings",
	})
	debug.Handle("tailsql/", "SQL live debugging of pose recordings", tsql.NewMux())

	debug.HandleFunc("recorder", "Recorded tracking sessions (JSON)", func(w http.ResponseWriter, req *http.Request) {
		if !httputil.RequireGet(w, req) {
			return
		}
		sessions, err := r.Sessions()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("listing sessions: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, struct {
			Stats    Stats     `json:"stats"`
			Sessions []Session `json:"sessions"`
		}{r.Stats(), sessions})
	})
	return nil
}
