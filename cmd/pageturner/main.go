package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/page.turner/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to a tuning config JSON file (defaults are used when empty)")
	scoreFile    = flag.String("score", "", "Reference score (.h or .json)")
	port         = flag.String("port", "/dev/ttyUSB0", "Serial port of the page-turn relay")
	disableRelay = flag.Bool("disable-relay", false, "Log page turns instead of sending them to the relay")
	wavFile      = flag.String("wav", "", "Follow a WAV recording instead of the microphone")
	realtime     = flag.Bool("realtime", false, "Pace WAV playback at the recording's sample rate")
	dbFile       = flag.String("db", "pageturner.db", "Session log database (empty disables logging)")
	listen       = flag.String("listen", ":8080", "Debug HTTP listen address (empty disables the server)")
	telemetry    = flag.Bool("telemetry", true, "Print a progress line per frame to stdout")
	recordFile   = flag.String("record", "", "Write the followed audio to this WAV file on exit")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func optionsFromFlags() options {
	return options{
		ConfigFile:   *configFile,
		ScoreFile:    *scoreFile,
		Port:         *port,
		DisableRelay: *disableRelay,
		WAVFile:      *wavFile,
		Realtime:     *realtime,
		DBFile:       *dbFile,
		Listen:       *listen,
		Telemetry:    *telemetry,
		RecordFile:   *recordFile,
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("pageturner"))
		return
	}
	if *scoreFile == "" {
		log.Fatal("A reference score is required (-score)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting %s", version.String("pageturner"))
	if err := run(ctx, optionsFromFlags(), os.Stdout); err != nil {
		log.Fatalf("page turner stopped: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
