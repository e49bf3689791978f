package cv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/vision"
)

// GenderConfig holds gender classifier configuration. The default model is
// the Levi-Hassner Caffe gender net.
type GenderConfig struct {
	ModelPath  string
	ConfigPath string
	InputSize  int
	Mean       gocv.Scalar
}

// DefaultGenderConfig returns the gender net defaults.
func DefaultGenderConfig() GenderConfig {
	return GenderConfig{
		ModelPath:  "models/gender/gender_net.caffemodel",
		ConfigPath: "models/gender/gender_deploy.prototxt",
		InputSize:  227,
		Mean:       gocv.NewScalar(78.4263377603, 87.7689143744, 114.895847746, 0),
	}
}

// genderLabels is the net's output order.
var genderLabels = []vision.Gender{vision.Male, vision.Female}

// GenderClassifier classifies a person crop.
type GenderClassifier struct {
	net gocv.Net
	cfg GenderConfig
	mu  sync.Mutex
}

// NewGenderClassifier loads the gender net.
func NewGenderClassifier(cfg GenderConfig) (*GenderClassifier, error) {
	net, err := loadNet(cfg.ModelPath, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	return &GenderClassifier{net: net, cfg: cfg}, nil
}

// Classify returns Unknown for empty crops.
func (g *GenderClassifier) Classify(frame *camera.Frame, box image.Rectangle) (vision.Gender, error) {
	img, release, err := matOf(frame)
	if err != nil {
		return vision.Unknown, err
	}
	defer release()

	box = clip(box, img)
	if box.Empty() {
		return vision.Unknown, nil
	}
	crop := img.Region(box)
	defer crop.Close()

	g.mu.Lock()
	defer g.mu.Unlock()

	size := image.Pt(g.cfg.InputSize, g.cfg.InputSize)
	blob := gocv.BlobFromImage(crop, 1.0, size, g.cfg.Mean, false, false)
	defer blob.Close()

	g.net.SetInput(blob, "")
	preds := g.net.Forward("")
	defer preds.Close()

	flat := preds.Reshape(1, 1)
	defer flat.Close()

	_, _, _, maxLoc := gocv.MinMaxLoc(flat)
	if maxLoc.X < 0 || maxLoc.X >= len(genderLabels) {
		return vision.Unknown, fmt.Errorf("cv: unexpected gender output index %d", maxLoc.X)
	}
	return genderLabels[maxLoc.X], nil
}

// Close releases the network.
func (g *GenderClassifier) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.net.Close()
}

// HandConfig holds hand landmark model configuration. The model takes a
// square RGB image and emits 21 (x, y, z) landmarks in input pixels plus a
// hand presence score.
type HandConfig struct {
	ModelPath      string
	InputSize      int
	LandmarkOutput string
	ScoreOutput    string
	MinScore       float32
}

// DefaultHandConfig returns defaults for the MediaPipe hand landmark model
// exported to ONNX.
func DefaultHandConfig() HandConfig {
	return HandConfig{
		ModelPath:      "models/hand_landmark.onnx",
		InputSize:      224,
		LandmarkOutput: "Identity",
		ScoreOutput:    "Identity_1",
		MinScore:       0.6,
	}
}

// GestureDetector finds a distress hand signal in a frame.
type GestureDetector struct {
	net gocv.Net
	cfg HandConfig
	mu  sync.Mutex
}

// NewGestureDetector loads the hand landmark model.
func NewGestureDetector(cfg HandConfig) (*GestureDetector, error) {
	net, err := loadNet(cfg.ModelPath, "")
	if err != nil {
		return nil, err
	}
	return &GestureDetector{net: net, cfg: cfg}, nil
}

// Detect runs the landmark model on the whole frame and classifies the hand.
func (g *GestureDetector) Detect(frame *camera.Frame) (vision.Gesture, error) {
	img, release, err := matOf(frame)
	if err != nil {
		return vision.GestureNone, err
	}
	defer release()

	g.mu.Lock()
	defer g.mu.Unlock()

	size := image.Pt(g.cfg.InputSize, g.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	g.net.SetInput(blob, "")
	outs := g.net.ForwardLayers([]string{g.cfg.LandmarkOutput, g.cfg.ScoreOutput})
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) != 2 {
		return vision.GestureNone, fmt.Errorf("cv: hand model returned %d outputs", len(outs))
	}

	scores, err := outs[1].DataPtrFloat32()
	if err != nil || len(scores) == 0 || scores[0] < g.cfg.MinScore {
		return vision.GestureNone, nil
	}

	pts, err := outs[0].DataPtrFloat32()
	if err != nil {
		return vision.GestureNone, fmt.Errorf("cv: landmarks: %w", err)
	}
	if len(pts) < vision.HandLandmarks*3 {
		return vision.GestureNone, fmt.Errorf("cv: landmarks: got %d values", len(pts))
	}

	var lm [vision.HandLandmarks]vision.Landmark
	scale := float64(g.cfg.InputSize)
	for i := range lm {
		lm[i] = vision.Landmark{X: float64(pts[i*3]) / scale, Y: float64(pts[i*3+1]) / scale}
	}
	return vision.ClassifyHand(lm), nil
}

// Close releases the network.
func (g *GestureDetector) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.net.Close()
}
