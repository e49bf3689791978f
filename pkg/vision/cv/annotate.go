package cv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/vision"
)

var (
	colorMale    = color.RGBA{0, 0, 255, 0}
	colorFemale  = color.RGBA{255, 0, 255, 0}
	colorUnknown = color.RGBA{160, 160, 160, 0}
	colorAlert   = color.RGBA{255, 0, 0, 0}
)

// Annotator draws person boxes and a gesture banner, then encodes JPEG.
type Annotator struct {
	Quality int
}

// NewAnnotator creates an annotator encoding at quality (1-100).
func NewAnnotator(quality int) *Annotator {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Annotator{Quality: quality}
}

// Annotate draws on the frame's image in place.
func (a *Annotator) Annotate(frame *camera.Frame, persons []vision.Person, gesture vision.Gesture) ([]byte, error) {
	img, release, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, p := range persons {
		c := colorUnknown
		switch p.Gender {
		case vision.Male:
			c = colorMale
		case vision.Female:
			c = colorFemale
		}
		gocv.Rectangle(&img, p.Box, c, 2)
		label := fmt.Sprintf("%s %.0f%%", p.Gender, p.Confidence*100)
		gocv.PutText(&img, label, image.Pt(p.Box.Min.X, max(p.Box.Min.Y-6, 12)), gocv.FontHersheySimplex, 0.5, c, 1)
	}

	if gesture != vision.GestureNone {
		gocv.PutText(&img, "SOS: "+string(gesture), image.Pt(20, 40), gocv.FontHersheySimplex, 1.0, colorAlert, 2)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, a.Quality})
	if err != nil {
		return nil, fmt.Errorf("cv: encode: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
