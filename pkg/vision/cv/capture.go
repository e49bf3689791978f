// Package cv implements the perception contracts with OpenCV through gocv:
// frame capture, YOLOv8 person detection, Caffe gender classification,
// hand landmark gesture detection and frame annotation.
package cv

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-shesafe/pkg/camera"
)

// Capture reads frames from a local device or a network stream.
type Capture struct {
	id string

	mu sync.Mutex
	vc *gocv.VideoCapture
}

// Open implements camera.Opener.
func Open(ctx context.Context, d camera.Descriptor, c camera.Capture) (camera.Source, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	switch d.Source.Kind {
	case camera.SourceDevice:
		vc, err = gocv.OpenVideoCapture(d.Source.Device)
	case camera.SourceStream:
		vc, err = gocv.OpenVideoCaptureWithAPI(d.Source.URL, gocv.VideoCaptureFFmpeg)
	default:
		return nil, fmt.Errorf("%w: %s: unknown source kind", camera.ErrSourceUnavailable, d.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", camera.ErrSourceUnavailable, d.ID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s: capture not opened", camera.ErrSourceUnavailable, d.ID)
	}

	// Keep latency low; stale frames are worse than dropped ones.
	vc.Set(gocv.VideoCaptureBufferSize, 2)
	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	return &Capture{id: d.ID, vc: vc}, nil
}

// Next grabs a frame. The returned frame owns a *gocv.Mat in Image and must
// be closed by the caller.
func (c *Capture) Next(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return camera.Frame{}, camera.ErrSourceUnavailable
	}

	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok || img.Empty() {
		img.Close()
		return camera.Frame{}, camera.ErrNoFrame
	}

	return camera.Frame{
		Width:    img.Cols(),
		Height:   img.Rows(),
		Captured: time.Now(),
		Image:    &img,
	}, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}

// matOf returns the frame's native image, decoding the JPEG if the frame
// has none. release must be called when done.
func matOf(frame *camera.Frame) (img gocv.Mat, release func(), err error) {
	if m, ok := frame.Image.(*gocv.Mat); ok && m != nil && !m.Empty() {
		return *m, func() {}, nil
	}
	if len(frame.JPEG) == 0 {
		return gocv.Mat{}, nil, fmt.Errorf("cv: frame has no image")
	}
	img, err = gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, nil, fmt.Errorf("cv: decode: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, nil, fmt.Errorf("cv: empty image")
	}
	return img, func() { img.Close() }, nil
}

// clip intersects r with the image bounds.
func clip(r image.Rectangle, img gocv.Mat) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
}

// loadNet reads a network and pins it to the CPU backend.
func loadNet(model, config string) (gocv.Net, error) {
	net := gocv.ReadNet(model, config)
	if net.Empty() {
		return net, fmt.Errorf("cv: failed to load model %s", model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return net, nil
}
