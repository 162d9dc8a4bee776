package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"parla/audio"
	"parla/capture"
	"parla/log"
	"parla/recorder"
	"parla/settings"
	"parla/shutdown"
	"parla/sink"
)

var version = "dev"

var (
	shutdownOnce sync.Once
	activeStore  *settings.Store
)

func main() {
	run()
}

func run() {
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	thresholdFlag := flag.Float64("threshold", settings.Default().SilenceThresholdDB, "Voice threshold in dB (e.g. -45)")
	silenceFlag := flag.Duration("silence", settings.Default().SilenceTimeout(), "Silence duration that ends a segment (e.g. 1500ms)")
	smoothingFlag := flag.Float64("smoothing", settings.Default().SmoothingTimeConstant, "Loudness smoothing time constant [0,1)")
	settingsFlag := flag.String("settings", "", "Load tunables from a yaml file")
	outDirFlag := flag.String("outdir", "segments", "Directory for captured segment files")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Replay a WAV file through the capture pipeline and exit")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("parla %s\n", version)
		os.Exit(0)
	}

	// Tunables: file first, then explicit flags on top.
	snap := settings.Default()
	if *settingsFlag != "" {
		snap, err = settings.LoadFile(*settingsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			snap.SilenceThresholdDB = *thresholdFlag
		case "silence":
			snap.SilenceTimeoutMS = int(silenceFlag.Milliseconds())
		case "smoothing":
			snap.SmoothingTimeConstant = *smoothingFlag
		}
	})
	if err := snap.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	activeStore = settings.NewStore(snap)

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	outDir, err := sink.NewDir(*outDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: parla -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], outDir)
		return
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		selectedDevice, err = audio.FindDevice(ctx, *deviceFlag)
		if err != nil {
			fmt.Printf("Warning: %v, using default device\n", err)
			selectedDevice = nil
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	deviceName := "system default"
	if selectedDevice != nil {
		deviceName = selectedDevice.Name
		if audio.IsBluetooth(deviceName) {
			fmt.Println("Warning: bluetooth microphone selected, expect lower audio quality")
		}
	}

	var segCount atomic.Int64
	session := capture.NewSession(capture.Config{
		Context:  ctx,
		Device:   selectedDevice,
		Settings: activeStore,
		Consumer: func(cctx context.Context, seg recorder.Segment) error {
			err := outDir.Consume(cctx, seg)
			tuiSend(SegmentMsg{
				Codec:   seg.Codec,
				Seconds: seg.Duration().Seconds(),
				SizeKB:  float64(len(seg.Bytes)) / 1024,
				Count:   int(segCount.Add(1)),
			})
			return err
		},
	})
	log.SessionStart(deviceName, "auto")

	if err := session.StartListening(); err != nil {
		log.Errorf("start listening: %v", err)
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(session)
	}()

	go watchSessionErrors(session)

	if *tuiFlag {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(snap.SilenceThresholdDB)
		tuiMu.Unlock()

		go forwardSessionState(session)

		tuiSend(ListeningMsg{On: true})
		tuiSend(DeviceLineMsg{Text: "mic: " + deviceName})

		if _, err := tuiProgram.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		gracefulShutdown(session)
		return
	}

	fmt.Printf("parla %s listening on %s (threshold %.1f dB, silence %v)\n",
		version, deviceName, snap.SilenceThresholdDB, snap.SilenceTimeout())
	fmt.Printf("segments are written to %s, Ctrl+C to stop\n", outDir.Path())
	go forwardSessionState(session)
	select {}
}

// forwardSessionState polls the session and mirrors it into TUI messages and
// the diagnostics log.
func forwardSessionState(s *capture.Session) {
	ticker := time.NewTicker(60 * time.Millisecond)
	defer ticker.Stop()

	wasRecording := false
	for range ticker.C {
		tuiSend(AudioLevelMsg{DB: s.Level()})

		rec := s.IsRecording()
		if rec && !wasRecording {
			tuiSend(RecordingStartMsg{Codec: s.Codec()})
		} else if !rec && wasRecording {
			tuiSend(RecordingStopMsg{})
		}
		wasRecording = rec
	}
}

func watchSessionErrors(s *capture.Session) {
	for err := range s.Errors() {
		log.Errorf("session error: %v", err)
		if errors.Is(err, capture.ErrEncoderFault) {
			fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
			gracefulShutdown(s)
		}
	}
}

func gracefulShutdown(s *capture.Session) {
	shutdownOnce.Do(func() {
		s.FullStop()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		log.Close()
		os.Exit(0)
	})
}

// runTestMode replays a WAV file through the full pipeline at capture speed
// and reports the segments it produced.
func runTestMode(wavPath string, outDir *sink.Dir) {
	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	session := capture.NewSession(capture.Config{
		Context:  fakeCtx,
		Settings: activeStore,
		Consumer: func(cctx context.Context, seg recorder.Segment) error {
			fmt.Printf("segment: %s %.2fs %.1fKB\n",
				seg.Codec, seg.Duration().Seconds(), float64(len(seg.Bytes))/1024)
			return outDir.Consume(cctx, seg)
		},
	})
	if err := session.StartListening(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Wait for the recorded audio to play out, then let the silence
	// timeout close any open segment before stopping.
	time.Sleep(fakeCtx.Duration() + activeStore.Get().SilenceTimeout() + 500*time.Millisecond)
	session.StopListening()
	time.Sleep(100 * time.Millisecond)
	session.FullStop()

	fmt.Printf("done: %d segment(s) in %s\n", session.SegmentCount(), outDir.Path())
	log.Close()
}
