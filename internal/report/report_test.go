package report

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource Path

func (s staticSource) Path() Path { return Path(s) }

func samplePath() Path {
	p := Path{Title: "allegro", ScoreLen: 100, Boundaries: []int{40, 80}}
	for i := 0; i < 60; i++ {
		pt := Point{Frame: i, Position: i + i/2, Cost: 0.1}
		if i == 20 || i == 21 {
			pt.Lost = true
			pt.Cost = 0
		}
		p.Points = append(p.Points, pt)
	}
	p.Points[59].Cost = 0.7
	p.Turns = []Turn{{Frame: 21, Position: 31, Page: 2}}
	return p
}

func TestSummarize(t *testing.T) {
	s := Summarize(samplePath())
	assert.Equal(t, 60, s.Frames)
	assert.Equal(t, 2, s.Lost)
	assert.Equal(t, 1, s.Turns)
	assert.Equal(t, 88, s.FinalPos)
	assert.InDelta(t, 0.7, s.MaxCost, 1e-12)
	assert.InDelta(t, (57*0.1+0.7)/58, s.MeanCost, 1e-12)
	assert.InDelta(t, 88.0/99, s.Completed, 1e-12)

	assert.Equal(t, Summary{}, Summarize(Path{}))
}

func TestSavePathPlot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plots", "allegro.png")
	require.NoError(t, SavePathPlot(file, samplePath()))

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestEmptyPath(t *testing.T) {
	assert.ErrorIs(t, SavePathPlot(filepath.Join(t.TempDir(), "x.png"), Path{}), ErrEmptyPath)
	assert.ErrorIs(t, RenderPathChart(&bytes.Buffer{}, Path{}), ErrEmptyPath)
	assert.ErrorIs(t, WritePathPNG(&bytes.Buffer{}, Path{}), ErrEmptyPath)
}

func TestRenderPathChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPathChart(&buf, samplePath()))

	html := buf.String()
	for _, want := range []string{"<html", "allegro", "end of page 1", "end of page 2", "lost=2"} {
		assert.Contains(t, html, want)
	}
}

func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestHandlerFormats(t *testing.T) {
	h := Handler(staticSource(samplePath()))

	tests := []struct {
		query       string
		status      int
		contentType string
	}{
		{"", http.StatusOK, "text/html; charset=utf-8"},
		{"?format=html", http.StatusOK, "text/html; charset=utf-8"},
		{"?format=png", http.StatusOK, "image/png"},
		{"?format=json", http.StatusOK, "application/json"},
		{"?format=gif", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/alignment"+tt.query))
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHandlerJSONRoundTrip(t *testing.T) {
	want := samplePath()
	w := httptest.NewRecorder()
	Handler(staticSource(want)).ServeHTTP(w, localHostRequest(http.MethodGet, "/?format=json"))
	require.Equal(t, http.StatusOK, w.Code)

	var got Path
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerEmptyAndMethod(t *testing.T) {
	h := Handler(staticSource(Path{}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, localHostRequest(http.MethodGet, "/"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, localHostRequest(http.MethodPost, "/"))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAttachAdminRoutes(t *testing.T) {
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, staticSource(samplePath()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/alignment?format=json"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), `{"title":"allegro"`))
}
