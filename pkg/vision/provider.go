// Package vision defines the perception contracts the camera workers use:
// person detection, gender classification, hand gesture detection and frame
// annotation. OpenCV-backed implementations live in pkg/vision/cv.
package vision

import (
	"image"

	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/camera"
)

// Gender is a classifier verdict.
type Gender string

const (
	Male    Gender = "Male"
	Female  Gender = "Female"
	Unknown Gender = "Unknown"
)

// Gesture is a hand gesture label. The empty value means no gesture.
type Gesture string

const (
	GestureNone      Gesture = ""
	GestureTuckThumb Gesture = "TUCK_THUMB"
	GestureTrapThumb Gesture = "TRAP_THUMB"
)

// AlertKind maps a gesture to its alert kind. ok is false for GestureNone
// and unknown labels.
func (g Gesture) AlertKind() (alert.Kind, bool) {
	switch g {
	case GestureTuckThumb:
		return alert.KindTuckThumb, true
	case GestureTrapThumb:
		return alert.KindTrapThumb, true
	default:
		return "", false
	}
}

// Detection is one detected person in pixel coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
}

// Center returns the box centroid.
func (d Detection) Center() image.Point {
	return image.Pt((d.Box.Min.X+d.Box.Max.X)/2, (d.Box.Min.Y+d.Box.Max.Y)/2)
}

// Person is a detection with its classified gender.
type Person struct {
	Detection
	Gender Gender
}

// PersonDetector finds people in a frame.
type PersonDetector interface {
	Detect(frame *camera.Frame) ([]Detection, error)
}

// GenderClassifier classifies the person inside box.
type GenderClassifier interface {
	Classify(frame *camera.Frame, box image.Rectangle) (Gender, error)
}

// GestureDetector reports the hand gesture visible in a frame.
type GestureDetector interface {
	Detect(frame *camera.Frame) (Gesture, error)
}

// Annotator draws detections onto a frame and returns it JPEG-encoded.
type Annotator interface {
	Annotate(frame *camera.Frame, persons []Person, gesture Gesture) ([]byte, error)
}

// Pipeline bundles the collaborators one worker uses. Gesture and Annotator
// are optional.
type Pipeline struct {
	Persons   PersonDetector
	Gender    GenderClassifier
	Gesture   GestureDetector
	Annotator Annotator
}
