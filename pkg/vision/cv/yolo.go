package cv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/vision"
)

// personClass is the COCO class id of "person".
const personClass = 0

// YOLOConfig holds person detector configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns defaults for YOLOv8n exported to ONNX.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// PersonDetector finds people with YOLOv8.
type PersonDetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewPersonDetector loads the YOLO model.
func NewPersonDetector(cfg YOLOConfig) (*PersonDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &PersonDetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect returns person boxes in frame pixel coordinates.
func (d *PersonDetector) Detect(frame *camera.Frame) ([]vision.Detection, error) {
	img, release, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	defer release()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, float32(img.Cols()), float32(img.Rows())), nil
}

// parse reads the [1, 84, 8400] YOLOv8 tensor: 4 box values (cx, cy, w, h)
// followed by 80 class scores per candidate, stored column-major.
func (d *PersonDetector) parse(output gocv.Mat, imgW, imgH float32) []vision.Detection {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	cols := sizes[1] // 84
	rows := sizes[2] // 8400

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
	)
	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	for i := 0; i < rows; i++ {
		// Only keep candidates whose best class is person.
		best, bestClass := float32(0), -1
		for c := 4; c < cols; c++ {
			if s := data[c*rows+i]; s > best {
				best, bestClass = s, c-4
			}
		}
		if bestClass != personClass || best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[0*rows+i], data[1*rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, best)
	}

	if len(boxes) == 0 {
		return nil
	}

	bounds := image.Rect(0, 0, int(imgW), int(imgH))
	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	out := make([]vision.Detection, 0, len(indices))
	for _, idx := range indices {
		out = append(out, vision.Detection{
			Box:        boxes[idx].Intersect(bounds),
			Confidence: float64(confidences[idx]),
		})
	}
	return out
}

// Close releases the network.
func (d *PersonDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
