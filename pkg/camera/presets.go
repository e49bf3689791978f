package camera

// Default coordinates used by the built-in preset (Hyderabad city center).
const (
	DefaultLat = 17.3850
	DefaultLon = 78.4867
)

// Preset names.
const (
	PresetWebcam = "webcam"
	PresetDemo   = "demo"
)

// Presets returns the built-in registries, used when no camera file is
// configured.
func Presets() map[string][]Descriptor {
	return map[string][]Descriptor{
		PresetWebcam: {
			{ID: "cam1", Location: "Local webcam", Lat: DefaultLat, Lon: DefaultLon, Source: Device(0)},
		},
		PresetDemo: {
			{ID: "cam1", Location: "Charminar", Lat: 17.3616, Lon: 78.4747, Source: Device(0)},
			{ID: "cam2", Location: "Hussain Sagar", Lat: 17.4239, Lon: 78.4738, Source: Device(1)},
		},
	}
}

// PresetNames returns the available preset names.
func PresetNames() []string {
	return []string{PresetWebcam, PresetDemo}
}

// Preset builds the registry for a named preset.
func Preset(name string) (*Registry, bool) {
	descs, ok := Presets()[name]
	if !ok {
		return nil, false
	}
	r, err := NewRegistry(DefaultCapture(), descs)
	if err != nil {
		return nil, false
	}
	return r, true
}
