// Command scorebuild renders a reference score for the follower from a MIDI
// file or a reference recording and writes it as a ScoreData.h header or a
// JSON table.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/config"
	"github.com/banshee-data/page.turner/internal/score"
)

type buildOptions struct {
	MIDIFile   string
	WAVFile    string
	Out        string
	Name       string
	BPM        float64
	Beats      float64
	Track      int
	Pages      string
	Seed       uint64
	ConfigFile string
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func build(opts buildOptions) (*score.Reference, error) {
	if (opts.MIDIFile == "") == (opts.WAVFile == "") {
		return nil, fmt.Errorf("exactly one of -midi and -wav is required")
	}

	cfg := config.DefaultTuningConfig()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	if opts.MIDIFile != "" {
		measures, err := parseInts(opts.Pages)
		if err != nil {
			return nil, fmt.Errorf("-pages: %w", err)
		}
		f, err := os.Open(opts.MIDIFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return score.BuildFromMIDI(opts.Name, f, score.MIDIOptions{
			BPM:             opts.BPM,
			SampleRate:      cfg.GetSampleRate(),
			HopSize:         cfg.GetHopSize(),
			Track:           opts.Track,
			PageEndMeasures: measures,
			BeatsPerMeasure: opts.Beats,
			Seed:            opts.Seed,
		})
	}

	ends, err := parseFloats(opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("-pages: %w", err)
	}
	pcm, err := audio.OpenWAV(opts.WAVFile)
	if err != nil {
		return nil, err
	}
	return score.BuildFromWAV(opts.Name, pcm, chroma.SettingsFromConfig(cfg), cfg.GetHopSize(), ends)
}

func main() {
	var opts buildOptions
	flag.StringVar(&opts.MIDIFile, "midi", "", "standard MIDI file to render")
	flag.StringVar(&opts.WAVFile, "wav", "", "reference recording to analyse")
	flag.StringVar(&opts.Out, "out", "ScoreData.h", "output file (.h or .json)")
	flag.StringVar(&opts.Name, "name", "", "score name stored in the output")
	flag.Float64Var(&opts.BPM, "bpm", 0, "tempo override for MIDI input (0 uses the file tempo)")
	flag.Float64Var(&opts.Beats, "beats", 0, "beats per measure override for MIDI input")
	flag.IntVar(&opts.Track, "track", -1, "MIDI track to render (-1 renders all tracks)")
	flag.StringVar(&opts.Pages, "pages", "", "page ends: last measure per page for MIDI, seconds for WAV (comma separated)")
	flag.Uint64Var(&opts.Seed, "seed", 1, "seed for the frame-to-frame variation of MIDI renders")
	flag.StringVar(&opts.ConfigFile, "config", "", "tuning config JSON (sample rate and hop size)")
	flag.Parse()

	ref, err := build(opts)
	if err != nil {
		log.Fatalf("build reference: %v", err)
	}
	if err := score.SaveFile(opts.Out, ref); err != nil {
		log.Fatalf("write reference: %v", err)
	}
	fmt.Printf("wrote %s: %d frames, %d pages\n", opts.Out, ref.Len(), ref.NumPages())
}
