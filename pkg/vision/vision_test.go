package vision

import (
	"image"
	"testing"

	"github.com/teslashibe/go-shesafe/pkg/alert"
)

func TestGestureAlertKind(t *testing.T) {
	tests := []struct {
		g    Gesture
		want alert.Kind
		ok   bool
	}{
		{GestureNone, "", false},
		{GestureTuckThumb, alert.KindTuckThumb, true},
		{GestureTrapThumb, alert.KindTrapThumb, true},
		{"WAVE", "", false},
	}
	for _, tc := range tests {
		got, ok := tc.g.AlertKind()
		if got != tc.want || ok != tc.ok {
			t.Errorf("%q.AlertKind() = %q, %v; want %q, %v", tc.g, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDetectionCenter(t *testing.T) {
	d := Detection{Box: image.Rect(100, 50, 200, 250)}
	if c := d.Center(); c != image.Pt(150, 150) {
		t.Errorf("Center = %v, want (150,150)", c)
	}
}

func TestMockClassifier(t *testing.T) {
	box := image.Rect(0, 0, 100, 200)
	m := &MockClassifier{Genders: map[image.Rectangle]Gender{box: Female}}

	if g, _ := m.Classify(nil, box); g != Female {
		t.Errorf("Classify = %s, want Female", g)
	}
	if g, _ := m.Classify(nil, image.Rect(1, 1, 2, 2)); g != Unknown {
		t.Errorf("Classify = %s, want Unknown", g)
	}
}

func hand(thumbTip, thumbMCP Landmark) [HandLandmarks]Landmark {
	var lm [HandLandmarks]Landmark
	lm[IndexFingerMCP] = Landmark{0.50, 0.50}
	lm[RingFingerMCP] = Landmark{0.56, 0.52}
	lm[PinkyMCP] = Landmark{0.59, 0.55}
	lm[ThumbMCP] = thumbMCP
	lm[ThumbTip] = thumbTip
	return lm
}

func TestClassifyHand(t *testing.T) {
	tests := []struct {
		name string
		lm   [HandLandmarks]Landmark
		want Gesture
	}{
		{"thumb tucked below index knuckle", hand(Landmark{0.55, 0.56}, Landmark{0.45, 0.60}), GestureTuckThumb},
		{"thumb trapped above its base", hand(Landmark{0.55, 0.45}, Landmark{0.45, 0.60}), GestureTrapThumb},
		{"thumb far from palm", hand(Landmark{0.20, 0.20}, Landmark{0.45, 0.60}), GestureNone},
		{"open hand", hand(Landmark{0.30, 0.65}, Landmark{0.40, 0.60}), GestureNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHand(tc.lm); got != tc.want {
				t.Errorf("ClassifyHand = %q, want %q", got, tc.want)
			}
		})
	}
}
