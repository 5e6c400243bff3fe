// Command sessionreport renders the alignment path of a stored session as
// a PNG plot and an interactive HTML chart.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/page.turner/internal/db"
	"github.com/banshee-data/page.turner/internal/report"
)

// resolveSession returns id, or the most recent session when id is empty.
func resolveSession(d *db.DB, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	sessions, err := d.Sessions(1)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", db.ErrSessionNotFound
	}
	return sessions[0].ID, nil
}

// render writes <outDir>/<id>.png and <outDir>/<id>.html for one session.
func render(d *db.DB, id, outDir string) (report.Summary, error) {
	path, err := d.FramePath(id)
	if err != nil {
		return report.Summary{}, err
	}
	if err := report.SavePathPlot(filepath.Join(outDir, id+".png"), path); err != nil {
		return report.Summary{}, err
	}

	f, err := os.Create(filepath.Join(outDir, id+".html"))
	if err != nil {
		return report.Summary{}, err
	}
	if err := report.RenderPathChart(f, path); err != nil {
		f.Close()
		return report.Summary{}, err
	}
	if err := f.Close(); err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(path), nil
}

func main() {
	var dbPath, sessionID, outDir, serve string
	flag.StringVar(&dbPath, "db", "pageturner.db", "path to the session log")
	flag.StringVar(&sessionID, "session", "", "session id (defaults to the most recent session)")
	flag.StringVar(&outDir, "out", "reports", "output directory")
	flag.StringVar(&serve, "serve", "", "after rendering, serve the session chart on this address")
	flag.Parse()

	d, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer d.Close()

	id, err := resolveSession(d, sessionID)
	if err != nil {
		log.Fatalf("find session: %v", err)
	}
	sum, err := render(d, id, outDir)
	if err != nil {
		log.Fatalf("render session %s: %v", id, err)
	}
	fmt.Printf("frames=%d lost=%d turns=%d mean cost=%.3f max cost=%.3f final position=%d completed=%.0f%%\n",
		sum.Frames, sum.Lost, sum.Turns, sum.MeanCost, sum.MaxCost, sum.FinalPos, 100*sum.Completed)

	if serve == "" {
		return
	}
	mux := http.NewServeMux()
	report.AttachAdminRoutes(mux, db.SessionPath{DB: d, ID: id})
	log.Printf("serving session %s on http://%s/debug/alignment", id, serve)
	if err := http.ListenAndServe(serve, mux); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
