// Package hotspot turns the alert ledger into a spatial risk snapshot.
//
// Alerts are bucketed by coordinates rounded to three decimal places (roughly
// a 100 m cell), weighted by kind and ranked by total risk. The snapshot is
// recomputed wholesale on every cycle and swapped in atomically.
package hotspot

import (
	"math"
	"sort"
	"time"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// Default map center used when there are no alerts.
const (
	DefaultLat = 17.3850
	DefaultLon = 78.4867
)

// Bucket is one spatial cell.
type Bucket struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	TotalRisk  float64 `json:"total_risk"`
	AlertCount int     `json:"alert_count"`
}

// CameraRisk is the summed risk attributed to one camera.
type CameraRisk struct {
	Camera     string  `json:"camera_id"`
	TotalRisk  float64 `json:"total_risk"`
	AlertCount int     `json:"alert_count"`
}

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Snapshot is one aggregation result. It is never modified after it is
// published.
type Snapshot struct {
	Buckets  []Bucket     `json:"buckets"`
	Cameras  []CameraRisk `json:"cameras"`
	Center   Point        `json:"center"`
	Alerts   int          `json:"alerts"`
	Computed time.Time    `json:"computed_at"`
}

// EmptySnapshot is the snapshot of an empty ledger.
func EmptySnapshot(at time.Time) *Snapshot {
	return &Snapshot{
		Buckets:  []Bucket{},
		Cameras:  []CameraRisk{},
		Center:   Point{Lat: DefaultLat, Lon: DefaultLon},
		Computed: at,
	}
}

// Round rounds a coordinate to the bucket precision.
func Round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Aggregate computes a snapshot from events.
func Aggregate(events []alert.Event, at time.Time) *Snapshot {
	snap := EmptySnapshot(at)
	if len(events) == 0 {
		return snap
	}

	type cell struct{ lat, lon float64 }
	buckets := make(map[cell]*Bucket)
	cameras := make(map[string]*CameraRisk)
	var sumLat, sumLon float64

	for _, ev := range events {
		w := ev.Kind.Weight()

		key := cell{Round(ev.Lat), Round(ev.Lon)}
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{Lat: key.lat, Lon: key.lon}
			buckets[key] = b
		}
		b.TotalRisk += w
		b.AlertCount++

		c, ok := cameras[ev.Camera]
		if !ok {
			c = &CameraRisk{Camera: ev.Camera}
			cameras[ev.Camera] = c
		}
		c.TotalRisk += w
		c.AlertCount++

		sumLat += ev.Lat
		sumLon += ev.Lon
	}

	for _, b := range buckets {
		snap.Buckets = append(snap.Buckets, *b)
	}
	sort.Slice(snap.Buckets, func(i, j int) bool {
		a, b := snap.Buckets[i], snap.Buckets[j]
		if a.TotalRisk != b.TotalRisk {
			return a.TotalRisk > b.TotalRisk
		}
		if a.Lat != b.Lat {
			return a.Lat < b.Lat
		}
		return a.Lon < b.Lon
	})

	for _, c := range cameras {
		snap.Cameras = append(snap.Cameras, *c)
	}
	sort.Slice(snap.Cameras, func(i, j int) bool {
		a, b := snap.Cameras[i], snap.Cameras[j]
		if a.TotalRisk != b.TotalRisk {
			return a.TotalRisk > b.TotalRisk
		}
		return a.Camera < b.Camera
	})

	n := float64(len(events))
	snap.Center = Point{Lat: sumLat / n, Lon: sumLon / n}
	snap.Alerts = len(events)
	return snap
}

// CameraRisk returns the total risk for camera, or 0 if it has no alerts.
func (s *Snapshot) CameraRisk(camera string) float64 {
	if s == nil {
		return 0
	}
	for _, c := range s.Cameras {
		if c.Camera == camera {
			return c.TotalRisk
		}
	}
	return 0
}

// Top returns up to n highest-risk buckets.
func (s *Snapshot) Top(n int) []Bucket {
	if s == nil || n <= 0 {
		return []Bucket{}
	}
	return s.Buckets[:min(n, len(s.Buckets))]
}
