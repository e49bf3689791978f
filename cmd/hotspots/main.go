// hotspots runs one hotspot aggregation over the alert ledger, writes the
// bucket, camera priority and map artifacts, and prints the top buckets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-shesafe/internal/config"
	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/hotspot"
	"github.com/teslashibe/go-shesafe/pkg/ledger"
)

func main() {
	backend := flag.String("ledger", "csv", "Alert ledger backend: csv, sqlite, postgres")
	path := flag.String("ledger-path", ledger.DefaultCSVPath, "CSV file or SQLite database path")
	dsn := flag.String("ledger-dsn", "", "PostgreSQL DSN for the postgres backend")
	outDir := flag.String("out", ".", "Directory for the generated artifacts")
	top := flag.Int("top", hotspot.MarkerCount, "Number of buckets to print")
	flag.Parse()

	_ = config.LoadDotEnv()
	log.Init(config.String("SHESAFE_LOG_LEVEL", "warn"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	led, err := ledger.Open(ctx, ledger.Config{Backend: *backend, Path: *path, DSN: config.String("SHESAFE_LEDGER_DSN", *dsn)})
	if err != nil {
		log.Error("open ledger", log.Err(err))
		os.Exit(1)
	}
	defer led.Close()

	def := hotspot.DefaultConfig()
	cfg := hotspot.Config{
		SnapshotPath: filepath.Join(*outDir, def.SnapshotPath),
		PriorityPath: filepath.Join(*outDir, def.PriorityPath),
		MapPath:      filepath.Join(*outDir, def.MapPath),
	}
	agg := hotspot.NewAggregator(led, cfg, hotspot.WithLogger(log.L()))

	snap, err := agg.Cycle(ctx)
	if err != nil {
		log.Error("aggregate", log.Err(err))
		os.Exit(1)
	}

	fmt.Printf("%d alerts in %d buckets\n", snap.Alerts, len(snap.Buckets))
	for i, b := range snap.Top(*top) {
		fmt.Printf("%2d. %.3f, %.3f  risk %-6g alerts %d\n", i+1, b.Lat, b.Lon, b.TotalRisk, b.AlertCount)
	}
	if len(snap.Cameras) > 0 {
		fmt.Println("\nCamera priority:")
		for _, c := range snap.Cameras {
			fmt.Printf("  %-12s risk %-6g alerts %d\n", c.Camera, c.TotalRisk, c.AlertCount)
		}
	}
	fmt.Printf("\nWrote %s, %s and %s\n", cfg.SnapshotPath, cfg.PriorityPath, cfg.MapPath)
}
