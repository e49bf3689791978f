package camera

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk camera registry.
type File struct {
	Capture Capture      `yaml:"capture"`
	Cameras []Descriptor `yaml:"cameras"`
}

// Registry is the validated, ordered set of cameras. It is built once at
// startup and never modified.
type Registry struct {
	capture Capture
	order   []Descriptor
	byID    map[string]Descriptor
}

// NewRegistry validates descs and builds a registry.
func NewRegistry(capture Capture, descs []Descriptor) (*Registry, error) {
	var problems []string
	problems = append(problems, capture.Validate()...)

	byID := make(map[string]Descriptor, len(descs))
	for i := range descs {
		d := descs[i]
		problems = append(problems, d.Validate()...)
		if _, dup := byID[d.ID]; dup && d.ID != "" {
			problems = append(problems, fmt.Sprintf("%s: duplicate camera id", d.ID))
		}
		byID[d.ID] = d
	}
	if len(descs) == 0 {
		problems = append(problems, "no cameras configured")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("camera: invalid registry: %s", strings.Join(problems, "; "))
	}

	return &Registry{
		capture: capture,
		order:   append([]Descriptor(nil), descs...),
		byID:    byID,
	}, nil
}

// Parse decodes a YAML registry. A missing capture section gets
// DefaultCapture.
func Parse(data []byte) (*Registry, error) {
	f := File{Capture: DefaultCapture()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("camera: parse: %w", err)
	}
	return NewRegistry(f.Capture, f.Cameras)
}

// LoadFile reads a YAML registry from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera: read %s: %w", path, err)
	}
	return Parse(data)
}

// All returns the cameras in configuration order.
func (r *Registry) All() []Descriptor {
	return append([]Descriptor(nil), r.order...)
}

// Get looks up a camera by id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Len returns the number of cameras.
func (r *Registry) Len() int { return len(r.order) }

// Capture returns the shared capture settings.
func (r *Registry) Capture() Capture { return r.capture }
