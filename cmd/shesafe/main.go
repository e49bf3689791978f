// SheSafe - multi-camera women safety monitor.
// Watches camera feeds for isolation, surrounding, distress gestures and
// loud audio, raises deduplicated alerts and serves a live dashboard API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-shesafe/internal/config"
	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/app"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/vision"
	"github.com/teslashibe/go-shesafe/pkg/vision/cv"
)

type modelFlags struct {
	yolo         string
	genderModel  string
	genderConfig string
	hand         string
	quality      int
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run owns every deferred cleanup and returns the process exit code.
func run(args []string) int {
	fs := flag.NewFlagSet("shesafe", flag.ContinueOnError)
	envFile := fs.String("env", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	cfg, models, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Init(cfg.LogLevel)
		log.Error("load env file", log.Err(err))
		return 1
	}
	cfg.LoadEnv()
	log.Init(cfg.LogLevel)

	perception, closeModels, err := loadPerception(models)
	if err != nil {
		log.Error("load models", log.Err(err))
		return 1
	}
	defer closeModels()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, perception, app.WithLogger(log.L()))
	if err != nil {
		var ce *app.ConfigError
		if errors.As(err, &ce) {
			log.Error("configuration error", "field", ce.Field, "error", ce.Message)
		} else {
			log.Error("startup failed", log.Err(err))
		}
		return 1
	}

	runErr := a.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
	if runErr != nil {
		log.Error("runtime error", log.Err(runErr))
		return 1
	}
	return 0
}

// parseFlags parses command line flags and returns configuration.
func parseFlags(fs *flag.FlagSet, args []string) (app.Config, modelFlags, error) {
	cfg := app.DefaultConfig()
	yolo := cv.DefaultYOLOConfig()
	gender := cv.DefaultGenderConfig()
	hand := cv.DefaultHandConfig()

	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	cameras := fs.String("cameras", "", "Camera registry YAML file (overrides -preset)")
	preset := fs.String("preset", cfg.Preset, "Built-in camera preset: "+strings.Join(camera.PresetNames(), ", "))
	addr := fs.String("addr", cfg.Web.Addr, "Dashboard API listen address")
	static := fs.String("static", "", "Directory of dashboard assets to serve at /")
	backend := fs.String("ledger", cfg.Ledger.Backend, "Alert ledger backend: csv, sqlite, postgres")
	ledgerPath := fs.String("ledger-path", cfg.Ledger.Path, "CSV file or SQLite database path")
	dsn := fs.String("ledger-dsn", "", "PostgreSQL DSN for the postgres backend")
	fresh := fs.Bool("fresh", false, "Clear the alert ledger and hotspot artifacts at startup")
	sounds := fs.String("sounds", "", "Directory with alert sounds (empty disables playback)")
	period := fs.Duration("hotspot-period", cfg.Hotspot.Period, "Hotspot aggregation period")

	var m modelFlags
	fs.StringVar(&m.yolo, "yolo", yolo.ModelPath, "YOLOv8 ONNX person model")
	fs.StringVar(&m.genderModel, "gender-model", gender.ModelPath, "Gender classifier weights")
	fs.StringVar(&m.genderConfig, "gender-config", gender.ConfigPath, "Gender classifier network definition")
	fs.StringVar(&m.hand, "hand-model", hand.ModelPath, "Hand landmark ONNX model (empty disables gestures)")
	fs.IntVar(&m.quality, "quality", camera.DefaultCapture().Quality, "JPEG quality of the live view")

	if err := fs.Parse(args); err != nil {
		return cfg, m, err
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.CameraFile, cfg.Preset = *cameras, *preset
	cfg.Web.Addr, cfg.Web.StaticDir = *addr, *static
	cfg.Ledger.Backend, cfg.Ledger.Path, cfg.Ledger.DSN = *backend, *ledgerPath, *dsn
	cfg.Fresh, cfg.SoundDir = *fresh, *sounds
	cfg.Hotspot.Period = *period
	return cfg, m, nil
}

// loadPerception loads the OpenCV models. The gesture model is optional.
func loadPerception(m modelFlags) (app.Perception, func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	yolo := cv.DefaultYOLOConfig()
	yolo.ModelPath = m.yolo
	persons, err := cv.NewPersonDetector(yolo)
	if err != nil {
		return app.Perception{}, nil, err
	}
	closers = append(closers, persons.Close)

	gcfg := cv.DefaultGenderConfig()
	gcfg.ModelPath, gcfg.ConfigPath = m.genderModel, m.genderConfig
	gender, err := cv.NewGenderClassifier(gcfg)
	if err != nil {
		closeAll()
		return app.Perception{}, nil, err
	}
	closers = append(closers, gender.Close)

	p := app.Perception{
		Open: cv.Open,
		Pipeline: vision.Pipeline{
			Persons:   persons,
			Gender:    gender,
			Annotator: cv.NewAnnotator(m.quality),
		},
	}

	if m.hand != "" {
		hcfg := cv.DefaultHandConfig()
		hcfg.ModelPath = m.hand
		gesture, err := cv.NewGestureDetector(hcfg)
		if err != nil {
			log.Warn("gesture detection disabled", "error", err)
		} else {
			closers = append(closers, gesture.Close)
			p.Pipeline.Gesture = gesture
		}
	}
	return p, closeAll, nil
}
