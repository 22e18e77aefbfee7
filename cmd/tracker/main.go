package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/mot/internal/api"
	"github.com/your-org/mot/internal/api/ws"
	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/internal/engine"
	"github.com/your-org/mot/internal/observability"
	"github.com/your-org/mot/internal/recorder"
	"github.com/your-org/mot/internal/source"
	"github.com/your-org/mot/internal/vision"
	"github.com/your-org/mot/internal/visualizer"
	"github.com/your-org/mot/pkg/dto"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	input := flag.String("input", "", "video file, rtsp/http url, or camera index (overrides config)")
	sampleFPS := flag.Float64("sample-fps", 0, "sampling rate in frames per second (overrides config)")
	statsCSV := flag.String("stats-csv", "", "statistics CSV output path (overrides config)")
	saveConfig := flag.String("save-config", "", "write the effective config to this path and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Source.URI = *input
	}
	if *sampleFPS > 0 {
		cfg.Source.SampleFPS = *sampleFPS
	}
	if *statsCSV != "" {
		cfg.Recorder.StatsCSVPath = *statsCSV
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *saveConfig != "" {
		if err := cfg.Save(*saveConfig); err != nil {
			slog.Error("save config", "error", err)
			os.Exit(1)
		}
		slog.Info("config written", "path", *saveConfig)
		return
	}

	if cfg.Source.URI == "" {
		fmt.Fprintln(os.Stderr, "no input: pass -input or set source.uri in the config")
		os.Exit(1)
	}

	slog.Info("starting tracker",
		"input", cfg.Source.URI,
		"sample_fps", cfg.Source.SampleFPS,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime once for both model sessions.
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	if err := run(cfg); err != nil {
		slog.Error("tracker failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config) error {
	slog.Info("loading detection model", "path", cfg.Engine.Detector.ModelPath)
	det, err := vision.NewDetector(cfg.Engine.Detector, nil)
	if err != nil {
		return fmt.Errorf("load detector: %w", err)
	}
	defer det.Close()

	slog.Info("loading embedding model", "path", cfg.Engine.Extractor.ModelPath)
	ext, err := vision.NewExtractor(cfg.Engine.Extractor, nil)
	if err != nil {
		return fmt.Errorf("load extractor: %w", err)
	}
	defer ext.Close()

	src, err := source.Open(cfg.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	pipe, err := engine.NewPipeline(cfg.Engine, src, det, ext)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	var stats *recorder.StatsRecorder
	if cfg.Recorder.StatsCSVPath != "" {
		stats, err = recorder.New(cfg.Recorder)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer stats.Close()
	}

	runID := uuid.NewString()
	info := src.Info()

	status := newStatusBoard(runID, info)
	feed := ws.NewFrameFeed(runID)

	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Feed:      feed,
		StatusFn:  status.snapshot,
		AppConfig: cfg,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		slog.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server error", "error", err)
		}
	}()
	defer server.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("pipeline running", "run_id", runID,
		"is_live", info.IsLive, "total_frames", info.TotalFrames,
		"source_fps", info.SourceFPS, "frame_step", info.FrameStep)

	var frame dto.LabeledFrame
	for ctx.Err() == nil && pipe.Next(&frame) {
		status.update(frame.FrameIndex+1, pipe.ActiveTracks())

		if stats != nil {
			if err := stats.Consume(&frame); err != nil {
				slog.Warn("record stats", "error", err)
			}
		}
		feed.Publish(&frame)

		if cfg.Visualizer.SnapshotDir != "" && frame.FrameIndex%cfg.Visualizer.SnapshotEvery == 0 {
			writeSnapshot(cfg.Visualizer, pipe, &frame)
		}
	}

	if ctx.Err() != nil {
		slog.Info("stop requested")
	}
	slog.Info("pipeline finished", "frames", pipe.FrameIndex())
	return nil
}

func writeSnapshot(cfg config.VisualizerConfig, pipe *engine.Pipeline, frame *dto.LabeledFrame) {
	img := pipe.LastFrame()
	if img == nil {
		return
	}
	data, err := visualizer.EncodeJPEG(img, frame, cfg.JPEGQuality)
	if err != nil {
		slog.Warn("render snapshot", "error", err)
		return
	}
	path := filepath.Join(cfg.SnapshotDir, fmt.Sprintf("frame_%06d.jpg", frame.FrameIndex))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("write snapshot", "path", path, "error", err)
	}
}

// statusBoard is the mutex-guarded snapshot served by /v1/status; the
// pipeline loop writes it, HTTP handlers read it.
type statusBoard struct {
	mu     sync.Mutex
	runID  string
	info   engine.FrameSourceInfo
	frames int
	tracks int
}

func newStatusBoard(runID string, info engine.FrameSourceInfo) *statusBoard {
	return &statusBoard{runID: runID, info: info}
}

func (s *statusBoard) update(frames, tracks int) {
	s.mu.Lock()
	s.frames = frames
	s.tracks = tracks
	s.mu.Unlock()
}

func (s *statusBoard) snapshot() dto.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dto.StatusResponse{
		RunID:        s.runID,
		FrameIndex:   s.frames,
		ActiveTracks: s.tracks,
		IsLive:       s.info.IsLive,
		TotalFrames:  s.info.TotalFrames,
		SourceFPS:    s.info.SourceFPS,
		SampleFPS:    s.info.SampleFPS,
		FrameStep:    s.info.FrameStep,
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path based on the
// operating system.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
