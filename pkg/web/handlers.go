package web

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/hotspot"
	"github.com/teslashibe/go-shesafe/pkg/state"
)

// StatsView is the /api/stats payload.
type StatsView struct {
	state.Counts
	CamerasActive int `json:"cameras_active"`

	// Which camera last wrote the counters, and when.
	Camera    string     `json:"camera_id,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// CameraView is one entry of /api/cameras.
type CameraView struct {
	ID       string       `json:"camera_id"`
	Location string       `json:"location"`
	Lat      float64      `json:"lat"`
	Lon      float64      `json:"lon"`
	Status   state.Status `json:"status"`
	Risk     float64      `json:"risk"`
	LastSeen *time.Time   `json:"last_seen,omitempty"`
	Worker   string       `json:"worker,omitempty"`
}

// StatusView is pushed on /ws/status.
type StatusView struct {
	Stats   StatsView    `json:"stats"`
	Cameras []CameraView `json:"cameras"`
}

func (s *Server) cameras() []CameraView {
	now := s.now()
	var snap *hotspot.Snapshot
	if s.src.Hotspots != nil {
		snap = s.src.Hotspots.Snapshot()
	}
	var workers map[string]string
	if s.src.Workers != nil {
		states := s.src.Workers()
		workers = make(map[string]string, len(states))
		for id, st := range states {
			workers[id] = string(st)
		}
	}

	descs := s.src.Registry.All()
	out := make([]CameraView, 0, len(descs))
	for _, d := range descs {
		v := CameraView{
			ID:       d.ID,
			Location: d.Location,
			Lat:      d.Lat,
			Lon:      d.Lon,
			Risk:     snap.CameraRisk(d.ID),
			Worker:   workers[d.ID],
		}
		last, ok := s.src.Store.Heartbeats.Last(d.ID)
		v.Status = state.Resolve(last, ok, now)
		if ok {
			v.LastSeen = &last
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) stats(cams []CameraView) StatsView {
	v := StatsView{Counts: s.src.Store.Stats.Get()}
	if cam, at := s.src.Store.Stats.Source(); cam != "" {
		v.Camera, v.UpdatedAt = cam, &at
	}
	for _, c := range cams {
		if c.Status == state.StatusActive {
			v.CamerasActive++
		}
	}
	return v
}

func (s *Server) status() StatusView {
	cams := s.cameras()
	return StatusView{Stats: s.stats(cams), Cameras: cams}
}

// handleStats returns the person counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.stats(s.cameras()))
}

// handleCameras lists every configured camera with its status and risk
func (s *Server) handleCameras(c *fiber.Ctx) error {
	return c.JSON(s.cameras())
}

// handlePriority returns per-camera risk, highest first
func (s *Server) handlePriority(c *fiber.Ctx) error {
	if s.src.Hotspots == nil {
		return c.JSON([]hotspot.CameraRisk{})
	}
	snap := s.src.Hotspots.Snapshot()
	if snap == nil || snap.Cameras == nil {
		return c.JSON([]hotspot.CameraRisk{})
	}
	return c.JSON(snap.Cameras)
}

// handleAlerts returns the most recent alerts, newest first. Ledger
// failures degrade to an empty list.
func (s *Server) handleAlerts(c *fiber.Ctx) error {
	limit := s.cfg.AlertLimit
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	if s.src.Alerts == nil {
		return c.JSON([]alert.Event{})
	}
	events, err := s.src.Alerts.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Warn("read alerts", "error", err)
		return c.JSON([]alert.Event{})
	}
	if events == nil {
		events = []alert.Event{}
	}
	return c.JSON(events)
}

// handleHotspots returns the bucket list, highest risk first
func (s *Server) handleHotspots(c *fiber.Ctx) error {
	if s.src.Hotspots == nil {
		return c.JSON([]hotspot.Bucket{})
	}
	snap := s.src.Hotspots.Snapshot()
	if snap == nil || snap.Buckets == nil {
		return c.JSON([]hotspot.Bucket{})
	}
	return c.JSON(snap.Buckets)
}

// handleHotspotMap serves the rendered heat map, or an empty map centered
// on the default location before the first aggregation.
func (s *Server) handleHotspotMap(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	if s.src.Hotspots != nil {
		if html := s.src.Hotspots.MapHTML(); len(html) > 0 {
			return c.Send(html)
		}
	}
	var buf bytes.Buffer
	if err := hotspot.RenderMap(&buf, hotspot.EmptySnapshot(s.now())); err != nil {
		return err
	}
	return c.Send(buf.Bytes())
}

const mjpegBoundary = "frame"

// handleVideo streams the camera's latest annotated frame as MJPEG
func (s *Server) handleVideo(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.src.Registry.Get(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown camera"})
	}

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	frames := s.src.Store.Frames
	interval := s.cfg.FrameInterval
	keepAlive := s.cfg.StreamKeepAlive
	stop := s.stop
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.streams.Add(1)
		defer s.streams.Add(-1)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Something is written at least every keepAlive, even for a camera
		// with no new frame, so a gone viewer surfaces as a write error.
		var last, written time.Time
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			fr, ok := frames.Latest(id)
			fresh := ok && (fr.Captured.IsZero() || !fr.Captured.Equal(last))
			if !fresh && time.Since(written) < keepAlive {
				continue
			}

			var err error
			if ok {
				last = fr.Captured
				err = writePart(w, fr.JPEG)
			} else {
				err = writeKeepAlive(w)
			}
			if err != nil {
				return
			}
			written = time.Now()
		}
	})
	return nil
}

// writeKeepAlive writes a bare line break between parts, which MJPEG
// clients skip.
func writeKeepAlive(w *bufio.Writer) error {
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// writePart writes one MJPEG part and flushes it.
func writePart(w *bufio.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
