package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/db"
	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/score"
	"github.com/banshee-data/page.turner/internal/testutil"
)

const (
	e2eRate   = 8000
	e2eWindow = 512
	e2eHold   = 4
)

const e2eConfig = `{
  "window_size": 512,
  "hop_size": 512,
  "sample_rate": 8000,
  "band_radius": 20,
  "telemetry_interval": "0s"
}`

func init() {
	monitoring.SetLogger(nil)
}

// writeFixtures renders a short melody, builds a two-boundary reference
// from it and writes config, score and recording into dir.
func writeFixtures(t *testing.T, dir string) options {
	t.Helper()

	var pcm []int16
	for _, note := range []int{72, 76, 79, 74, 81, 77, 83, 73, 78, 75, 80, 82, 72, 79, 74} {
		pcm = append(pcm, testutil.Sine(testutil.NoteFrequency(note), 8000, e2eRate, e2eHold*e2eWindow)...)
	}
	rec := &audio.PCM{Samples: pcm, SampleRate: e2eRate}

	settings := chroma.Settings{WindowSize: e2eWindow, SampleRate: e2eRate, NoiseFloor: 10, MinBin: 2}
	ref, err := score.BuildFromWAV("melody", rec, settings, e2eWindow, []float64{1.28, 2.56})
	if err != nil {
		t.Fatalf("failed to build reference: %v", err)
	}

	opts := options{
		ConfigFile:   filepath.Join(dir, "tuning.json"),
		ScoreFile:    filepath.Join(dir, "melody.json"),
		WAVFile:      filepath.Join(dir, "melody.wav"),
		DBFile:       filepath.Join(dir, "sessions.db"),
		DisableRelay: true,
		Telemetry:    true,
	}
	if err := os.WriteFile(opts.ConfigFile, []byte(e2eConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := score.SaveFile(opts.ScoreFile, ref); err != nil {
		t.Fatalf("failed to save score: %v", err)
	}
	f, err := os.Create(opts.WAVFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := audio.EncodeWAV(f, rec); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return opts
}

func TestPageTurnerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	opts := writeFixtures(t, dir)
	opts.RecordFile = filepath.Join(dir, "take.wav")

	var stdout bytes.Buffer
	if err := run(context.Background(), opts, &stdout); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out := stdout.String()
	if got := strings.Count(out, ">>> PAGE TURN"); got != 2 {
		t.Errorf("expected 2 page turn lines, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "*** FINISHED") {
		t.Errorf("expected finish line in telemetry:\n%s", out)
	}

	d, err := db.NewDB(opts.DBFile)
	if err != nil {
		t.Fatalf("failed to reopen session log: %v", err)
	}
	defer d.Close()

	sessions, err := d.Sessions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.Status != db.StatusFinished {
		t.Errorf("session status = %q, want %q", s.Status, db.StatusFinished)
	}
	if s.ScoreName != "melody" || s.PageTurns != 2 {
		t.Errorf("unexpected session: %+v", s)
	}

	turns, err := d.PageTurns(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	pages := make([]int, len(turns))
	for i, pt := range turns {
		pages[i] = pt.Page
		if !pt.Sent {
			t.Errorf("page turn %d was not marked sent", i)
		}
	}
	if diff := cmp.Diff([]int{2, 3}, pages); diff != "" {
		t.Errorf("page turn pages mismatch (-want +got):\n%s", diff)
	}

	path, err := d.FramePath(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(path.Points) == 0 {
		t.Error("expected stored frames")
	}

	take, err := audio.OpenWAV(opts.RecordFile)
	if err != nil {
		t.Fatalf("failed to read recording: %v", err)
	}
	if take.SampleRate != e2eRate || len(take.Samples) == 0 {
		t.Errorf("unexpected recording: %d Hz, %d samples", take.SampleRate, len(take.Samples))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	opts := writeFixtures(t, dir)
	opts.Telemetry = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, opts, &bytes.Buffer{}); err != nil {
		t.Fatalf("cancelled run should stop cleanly, got %v", err)
	}

	d, err := db.NewDB(opts.DBFile)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	sessions, err := d.Sessions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Status != db.StatusStopped {
		t.Errorf("expected one stopped session, got %+v", sessions)
	}
}

func TestRunRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	opts := writeFixtures(t, dir)

	tests := []struct {
		name   string
		mutate func(*options)
	}{
		{"missing score", func(o *options) { o.ScoreFile = filepath.Join(dir, "nope.json") }},
		{"missing config", func(o *options) { o.ConfigFile = filepath.Join(dir, "nope.json") }},
		{"sample rate mismatch", func(o *options) { o.ConfigFile = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := opts
			tc.mutate(&o)
			if err := run(context.Background(), o, &bytes.Buffer{}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRecorderStopsAtLimit(t *testing.T) {
	pcm := testutil.Sine(440, 8000, e2eRate, 1000)
	rec := newRecorder(audio.NewSliceSource(pcm), e2eRate, 50*time.Millisecond)

	buf := make([]int16, 128)
	read := 0
	for {
		n, err := rec.ReadBlock(context.Background(), buf)
		read += n
		if err != nil {
			break
		}
	}
	if read != len(pcm) {
		t.Errorf("passed through %d samples, want %d", read, len(pcm))
	}
	if diff := cmp.Diff(pcm[:400], rec.samples); diff != "" {
		t.Errorf("recorded samples mismatch (-want +got):\n%s", diff)
	}
	if !rec.truncated {
		t.Error("recording not marked truncated")
	}
}
