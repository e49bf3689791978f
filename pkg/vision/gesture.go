package vision

import "math"

// Landmark is a hand keypoint in normalized image coordinates (0..1, y down).
type Landmark struct {
	X, Y float64
}

// Hand landmark indices (21-point hand model).
const (
	Wrist          = 0
	ThumbMCP       = 2
	ThumbIP        = 3
	ThumbTip       = 4
	IndexFingerMCP = 5
	RingFingerMCP  = 13
	PinkyMCP       = 17

	HandLandmarks = 21
)

// Palm-distance limits for the distress signals.
const (
	TuckThumbMaxDist = 0.12
	TrapThumbMaxDist = 0.18
)

// ClassifyHand recognizes the "signal for help" stages from one hand's
// landmarks: thumb tucked across the palm, then fingers folded over it.
func ClassifyHand(lm [HandLandmarks]Landmark) Gesture {
	index, ring, pinky := lm[IndexFingerMCP], lm[RingFingerMCP], lm[PinkyMCP]
	palmX := (index.X + ring.X + pinky.X) / 3
	palmY := (index.Y + ring.Y + pinky.Y) / 3

	tip := lm[ThumbTip]
	dist := math.Hypot(tip.X-palmX, tip.Y-palmY)

	if tip.Y > index.Y && dist < TuckThumbMaxDist {
		return GestureTuckThumb
	}
	if tip.Y < lm[ThumbMCP].Y && dist < TrapThumbMaxDist {
		return GestureTrapThumb
	}
	return GestureNone
}
