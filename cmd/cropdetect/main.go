package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	cropdetect "github.com/gwlsn/cropdetect"
	"github.com/gwlsn/cropdetect/internal/config"
	"github.com/gwlsn/cropdetect/internal/crop"
	"github.com/gwlsn/cropdetect/internal/detect"
	"github.com/gwlsn/cropdetect/internal/ffmpeg"
	"github.com/gwlsn/cropdetect/internal/logger"
	"github.com/gwlsn/cropdetect/internal/store"
)

const defaultConfigPath = "cropdetect.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code.
// Every failure, usage errors included, exits 1.
func run(args []string, stdout, stderr io.Writer) int {
	// Parse command line flags
	flags := flag.NewFlagSet("cropdetect", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "Path to config file (default: ./cropdetect.yaml if present)")
	printParams := flags.Bool("print", false, "Also print \"x y w h\" to stdout")
	showHistory := flags.Bool("history", false, "List recorded detections for the video and exit")
	writeConfig := flags.String("write-config", "", "Write the effective config to this path and exit")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: cropdetect [flags] <video>\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *showVersion {
		fmt.Fprintln(stdout, "cropdetect", cropdetect.Version)
		return 0
	}

	cfg, cfgPath, err := loadConfig(*configPath)
	if err != nil {
		logger.InitWriter(stderr, "info")
		logger.Error("Could not load config", "path", cfgPath, "error", err)
		return 1
	}

	// Initialize logger with configured level
	logger.InitWriter(stderr, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "path", cfgPath, "error", err)
		return 1
	}

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			logger.Error("Could not write config", "path", *writeConfig, "error", err)
			return 1
		}
		logger.Info("Config written", "path", *writeConfig)
		return 0
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return 1
	}
	videoPath := flags.Arg(0)

	var history store.Store
	if cfg.HistoryDB != "" {
		sqlite, err := store.NewSQLiteStore(cfg.HistoryDB)
		if err != nil {
			logger.Error("Failed to open history database", "path", cfg.HistoryDB, "error", err)
			return 1
		}
		defer sqlite.Close()
		logger.Debug("History enabled", "db", sqlite.Path())
		history = sqlite
	}

	if *showHistory {
		return listHistory(stdout, history, videoPath)
	}

	letterbox, _ := cfg.Letterbox() // checked by Validate
	finder := crop.NewFinder(letterbox, cfg.Threshold)

	fs := afero.NewOsFs()
	detector := detect.New(ffmpeg.NewExtractor(cfg.FFmpegPath), finder, fs, detect.OptionsFromConfig(cfg))
	if cfg.Probe {
		detector.SetProber(ffmpeg.NewProber(cfg.FFprobePath))
	}
	if history != nil {
		detector.SetHistory(history)
	}

	// Cancel the ffmpeg child on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("Starting detection", "version", cropdetect.Version, "video", videoPath,
		"timestamp", cfg.Timestamp, "letterbox", cfg.LetterboxColor, "threshold", cfg.Threshold)

	if _, err := detector.Run(ctx, videoPath); err != nil {
		logger.Error("Crop detection failed", "video", videoPath, "kind", errorKind(err), "error", err)
		return 1
	}

	if *printParams {
		// Echo what downstream consumers will read, not the in-memory result
		rect, err := crop.ReadParams(fs, cfg.OutputPath)
		if err != nil {
			logger.Error("Could not read back crop params", "path", cfg.OutputPath, "error", err)
			return 1
		}
		fmt.Fprintln(stdout, rect.String())
	}
	return 0
}

// loadConfig resolves the config file (flag, then CONFIG_PATH, then
// ./cropdetect.yaml), loads it and applies CROPDETECT_* overrides.
func loadConfig(flagPath string) (*config.Config, string, error) {
	cfgPath := flagPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = defaultConfigPath
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

func listHistory(w io.Writer, history store.Store, videoPath string) int {
	if history == nil {
		logger.Error("History is disabled; set history_db in the config or CROPDETECT_HISTORY_DB")
		return 1
	}

	list, err := history.ListDetections(videoPath, 0)
	if err != nil {
		logger.Error("Could not read history", "error", err)
		return 1
	}
	for _, d := range list {
		fmt.Fprintf(w, "%s  %s  %d %d %d %d  (%dx%d)\n",
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"), d.Timestamp,
			d.X, d.Y, d.W, d.H, d.FrameWidth, d.FrameHeight)
	}
	return 0
}

// errorKind names the failure class for the log line.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ffmpeg.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ffmpeg.ErrTimestampOutOfRange):
		return "timestamp_out_of_range"
	case errors.Is(err, ffmpeg.ErrExtractFailed):
		return "extract_failed"
	case errors.Is(err, crop.ErrDecode):
		return "decode_failed"
	case errors.Is(err, crop.ErrNoContent):
		return "no_content"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}
