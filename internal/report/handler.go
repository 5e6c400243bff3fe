package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// Handler serves the path from src. The format query parameter selects
// html (default, interactive chart), png or json.
func Handler(src PathSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p := src.Path()

		var buf bytes.Buffer
		var contentType string
		var err error
		switch format := r.URL.Query().Get("format"); format {
		case "", "html":
			contentType = "text/html; charset=utf-8"
			err = RenderPathChart(&buf, p)
		case "png":
			contentType = "image/png"
			err = WritePathPNG(&buf, p)
		case "json":
			contentType = "application/json"
			err = json.NewEncoder(&buf).Encode(p)
		default:
			http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
			return
		}

		if errors.Is(err, ErrEmptyPath) {
			http.Error(w, "no frames recorded yet", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(buf.Bytes())
	})
}

// AttachAdminRoutes serves the path at /debug/alignment.
func AttachAdminRoutes(mux *http.ServeMux, src PathSource) {
	debug := tsweb.Debugger(mux)
	debug.Handle("alignment", "alignment path of the current performance", Handler(src))
}
