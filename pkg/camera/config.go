// Package camera describes the monitored cameras and the frame source
// contract their workers read from.
package camera

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceKind tags a SourceDescriptor.
type SourceKind int

const (
	SourceDevice SourceKind = iota // local capture device index
	SourceStream                   // network stream address
)

func (k SourceKind) String() string {
	if k == SourceStream {
		return "stream"
	}
	return "device"
}

// SourceDescriptor is either a local device index or a stream URL.
type SourceDescriptor struct {
	Kind   SourceKind
	Device int
	URL    string
}

// Device returns a descriptor for local device index.
func Device(index int) SourceDescriptor {
	return SourceDescriptor{Kind: SourceDevice, Device: index}
}

// Stream returns a descriptor for a network stream.
func Stream(url string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceStream, URL: url}
}

func (s SourceDescriptor) String() string {
	if s.Kind == SourceStream {
		return s.URL
	}
	return strconv.Itoa(s.Device)
}

// UnmarshalYAML accepts either a scalar ("0", "rtsp://...") or a mapping
// with a "device" or "url" key.
func (s *SourceDescriptor) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = ParseSource(n.Value)
		return nil
	case yaml.MappingNode:
		var m struct {
			Device *int   `yaml:"device"`
			URL    string `yaml:"url"`
		}
		if err := n.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.Device != nil && m.URL != "":
			return fmt.Errorf("line %d: source has both device and url", n.Line)
		case m.Device != nil:
			*s = Device(*m.Device)
		case m.URL != "":
			*s = Stream(m.URL)
		default:
			return fmt.Errorf("line %d: source needs device or url", n.Line)
		}
		return nil
	default:
		return fmt.Errorf("line %d: invalid source", n.Line)
	}
}

// MarshalYAML writes the scalar form.
func (s SourceDescriptor) MarshalYAML() (any, error) {
	if s.Kind == SourceStream {
		return s.URL, nil
	}
	return s.Device, nil
}

// ParseSource resolves a textual source: a non-negative integer is a device
// index, anything else a stream address.
func ParseSource(v string) SourceDescriptor {
	v = strings.TrimSpace(v)
	if i, err := strconv.Atoi(v); err == nil && i >= 0 {
		return Device(i)
	}
	return Stream(v)
}

// Descriptor is one configured camera. Descriptors are immutable after load.
type Descriptor struct {
	ID       string           `yaml:"id" json:"id"`
	Location string           `yaml:"location" json:"location"`
	Lat      float64          `yaml:"lat" json:"lat"`
	Lon      float64          `yaml:"lon" json:"lon"`
	Source   SourceDescriptor `yaml:"source" json:"-"`

	// AudioDevice enables audio anomaly detection from this ALSA device.
	AudioDevice string `yaml:"audio_device,omitempty" json:"-"`
}

// Capture holds frame acquisition settings shared by all cameras.
type Capture struct {
	Width     int `yaml:"width" json:"width"`         // requested frame width, 0 keeps the source's
	Height    int `yaml:"height" json:"height"`       // requested frame height, 0 keeps the source's
	Framerate int `yaml:"framerate" json:"framerate"` // target FPS
	Quality   int `yaml:"quality" json:"quality"`     // JPEG quality 1-100
}

// DefaultCapture returns 640x480 at 15 FPS, which is what the person
// detector is fed anyway.
func DefaultCapture() Capture {
	return Capture{
		Width:     640,
		Height:    480,
		Framerate: 15,
		Quality:   80,
	}
}

// Validate checks capture settings. Returns a list of problems, or nil.
func (c *Capture) Validate() []string {
	var errors []string
	if c.Width < 0 || c.Width > 4096 {
		errors = append(errors, "width must be between 0 and 4096")
	}
	if c.Height < 0 || c.Height > 2160 {
		errors = append(errors, "height must be between 0 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	return errors
}

// Validate checks a single descriptor. Returns a list of problems, or nil.
func (d *Descriptor) Validate() []string {
	var errors []string
	if strings.TrimSpace(d.ID) == "" {
		errors = append(errors, "id must not be empty")
	}
	if d.Lat < -90 || d.Lat > 90 {
		errors = append(errors, fmt.Sprintf("%s: lat must be between -90 and 90", d.ID))
	}
	if d.Lon < -180 || d.Lon > 180 {
		errors = append(errors, fmt.Sprintf("%s: lon must be between -180 and 180", d.ID))
	}
	if d.Source.Kind == SourceStream && d.Source.URL == "" {
		errors = append(errors, fmt.Sprintf("%s: source must not be empty", d.ID))
	}
	return errors
}
