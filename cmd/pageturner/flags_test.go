package main

import (
	"testing"
)

// TestFlagDefaults verifies the defaults a bare invocation runs with.
func TestFlagDefaults(t *testing.T) {
	if *disableRelay {
		t.Error("relay should be enabled by default")
	}
	if *realtime {
		t.Error("WAV playback should not be paced by default")
	}
	if !*telemetry {
		t.Error("telemetry should be on by default")
	}
	if *dbFile != "pageturner.db" {
		t.Errorf("expected default db pageturner.db, got %q", *dbFile)
	}
	if *listen != ":8080" {
		t.Errorf("expected default listen :8080, got %q", *listen)
	}
}

func TestOptionsFromFlags(t *testing.T) {
	oldScore, oldWAV := *scoreFile, *wavFile
	defer func() { *scoreFile, *wavFile = oldScore, oldWAV }()

	*scoreFile = "etude.h"
	*wavFile = "take.wav"
	opts := optionsFromFlags()
	if opts.ScoreFile != "etude.h" || opts.WAVFile != "take.wav" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Port != *port {
		t.Errorf("port = %q, want %q", opts.Port, *port)
	}
}
