package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/audio/mic"
	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/config"
	"github.com/banshee-data/page.turner/internal/db"
	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/pipeline"
	"github.com/banshee-data/page.turner/internal/report"
	"github.com/banshee-data/page.turner/internal/score"
	"github.com/banshee-data/page.turner/internal/serialmux"
	"github.com/banshee-data/page.turner/internal/tracker"
)

const (
	dbBatchSize     = 32
	telemetryBuffer = 64
)

type options struct {
	ConfigFile   string
	ScoreFile    string
	Port         string
	DisableRelay bool
	WAVFile      string
	Realtime     bool
	DBFile       string
	Listen       string
	Telemetry    bool
	RecordFile   string
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func openRelay(opts options, cfg *config.TuningConfig) (serialmux.SerialMuxInterface, error) {
	if opts.DisableRelay {
		log.Printf("relay disabled, page turns are logged only")
		return serialmux.NewDisabledSerialMux(), nil
	}
	portOpts, err := serialmux.PortOptions{BaudRate: cfg.GetSerialBaud()}.Normalise()
	if err != nil {
		return nil, err
	}
	relay, err := serialmux.NewRealSerialMux(opts.Port, portOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open relay on %s: %w", opts.Port, err)
	}
	log.Printf("relay on %s (%s)", opts.Port, portOpts)
	return relay, nil
}

func openSource(opts options, cfg *config.TuningConfig) (audio.Source, func(), error) {
	if opts.WAVFile == "" {
		m, err := mic.Open(cfg.GetSampleRate())
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			if n := m.Overruns(); n > 0 {
				log.Printf("microphone dropped %d blocks", n)
			}
			if err := m.Close(); err != nil {
				log.Printf("failed to close microphone: %v", err)
			}
		}, nil
	}

	pcm, err := audio.OpenWAV(opts.WAVFile)
	if err != nil {
		return nil, nil, err
	}
	if pcm.SampleRate != cfg.GetSampleRate() {
		return nil, nil, fmt.Errorf("%s is %d Hz, config expects %d Hz", opts.WAVFile, pcm.SampleRate, cfg.GetSampleRate())
	}
	log.Printf("following %s (%.1fs, realtime=%v)", opts.WAVFile, pcm.Duration(), opts.Realtime)
	return audio.NewWAVSource(pcm, nil, opts.Realtime), func() {}, nil
}

// maxRecording caps the audio kept for -record.
const maxRecording = 30 * time.Minute

// recorder keeps a copy of what is read from the wrapped source, up to
// limit samples. Later audio is still passed through but not kept.
type recorder struct {
	src       audio.Source
	limit     int
	samples   []int16
	truncated bool
}

func newRecorder(src audio.Source, sampleRate int, limit time.Duration) *recorder {
	return &recorder{src: src, limit: int(limit.Seconds() * float64(sampleRate))}
}

func (r *recorder) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	n, err := r.src.ReadBlock(ctx, dst)
	keep := min(n, r.limit-len(r.samples))
	if keep < n && !r.truncated {
		r.truncated = true
		log.Printf("recording limit of %d samples reached, later audio is not recorded", r.limit)
	}
	r.samples = append(r.samples, dst[:keep]...)
	return n, err
}

func (r *recorder) save(path string, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.EncodeWAV(f, &audio.PCM{Samples: r.samples, SampleRate: sampleRate}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}

	ref, err := score.LoadFile(opts.ScoreFile)
	if err != nil {
		return err
	}
	log.Printf("loaded score %q: %d frames, %d pages", ref.Name(), ref.Len(), ref.NumPages())

	relay, err := openRelay(opts, cfg)
	if err != nil {
		return err
	}
	defer relay.Close()

	src, closeSource, err := openSource(opts, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var rec *recorder
	if opts.RecordFile != "" {
		rec = newRecorder(src, cfg.GetSampleRate(), maxRecording)
		src = rec
	}

	ext, err := chroma.NewExtractor(chroma.SettingsFromConfig(cfg))
	if err != nil {
		return err
	}
	trk, err := tracker.New(ref, tracker.SettingsFromConfig(cfg))
	if err != nil {
		return err
	}

	// The relay sink goes first so later sinks see whether the key was sent.
	path := pipeline.NewPathRecorder(ref)
	sinks := pipeline.MultiSink{pipeline.NewRelaySink(relay), path}

	var tel *monitoring.Telemetry
	if opts.Telemetry {
		tel = monitoring.NewTelemetry(stdout, telemetryBuffer)
		sinks = append(sinks, pipeline.NewTelemetrySink(tel, nil, cfg.GetTelemetryInterval()))
	}

	var (
		store   *db.DB
		session *db.Session
		dbSink  *pipeline.DBSink
	)
	if opts.DBFile != "" {
		store, err = db.NewDB(opts.DBFile)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer store.Close()

		session, err = store.StartSession(ref.Name(), ref.Len(), ref.Boundaries(), time.Now())
		if err != nil {
			return err
		}
		log.Printf("session %s started", session.ID)
		dbSink = pipeline.NewDBSink(store, session.ID, dbBatchSize)
		sinks = append(sinks, dbSink)
	}

	p, err := pipeline.New(pipeline.Config{
		Extractor: ext,
		Tracker:   trk,
		HopSize:   cfg.GetHopSize(),
		Sink:      sinks,
	})
	if err != nil {
		return err
	}

	watcher := serialmux.NewStatusWatcher(relay, nil)

	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	// run the monitor routine to read the relay's status lines
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Monitor(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor relay: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("relay status watcher stopped: %v", err)
		}
	}()

	if opts.Listen != "" {
		mux := http.NewServeMux()
		relay.AttachAdminRoutes(mux)
		watcher.AttachAdminRoutes(mux)
		p.AttachAdminRoutes(mux)
		report.AttachAdminRoutes(mux, path)
		if store != nil {
			store.AttachAdminRoutes(mux)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(bgCtx, opts.Listen, mux)
		}()
	}

	runErr := p.Run(ctx, src)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if dbSink != nil {
		dbSink.Close()
		if n := dbSink.Dropped(); n > 0 {
			log.Printf("session log dropped %d frames", n)
		}
		if err := store.FinishSession(session.ID, sessionResult(p)); err != nil {
			log.Printf("failed to finish session: %v", err)
		}
	}
	if tel != nil {
		tel.Close()
	}

	cancel()
	wg.Wait()

	if rec != nil {
		if err := rec.save(opts.RecordFile, cfg.GetSampleRate()); err != nil {
			log.Printf("failed to write recording: %v", err)
		} else {
			log.Printf("recording written to %s", opts.RecordFile)
		}
	}

	st := p.Status()
	log.Printf("stopped at position %d/%d (page %d of %d), %d frames, %d deadline misses",
		st.Tracker.Position, st.Tracker.ScoreLen, st.Tracker.Page, st.Tracker.TotalPages,
		st.Stats.Frames, st.Stats.DeadlineMisses)
	return runErr
}

func sessionResult(p *pipeline.Pipeline) db.SessionResult {
	st := p.Status()
	status := db.StatusStopped
	if st.Finished {
		status = db.StatusFinished
	}
	return db.SessionResult{
		Status:         status,
		FinishedAt:     time.Now(),
		FinalPosition:  st.Tracker.Position,
		Frames:         int64(st.Stats.Frames),
		LostFrames:     int64(st.Tracker.Stats.Lost),
		Recoveries:     int64(st.Tracker.Stats.Recoveries),
		PageTurns:      int64(st.Tracker.Stats.PageTurns),
		DeadlineMisses: int64(st.Stats.DeadlineMisses),
	}
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start debug server: %v", err)
		}
	}()
	log.Printf("debug routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
