package hotspot

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// MarkerCount is how many top buckets get a marker on the map.
const MarkerCount = 5

// WriteBuckets writes the bucket table as CSV.
func WriteBuckets(w io.Writer, snap *Snapshot) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"lat_bucket", "lon_bucket", "total_risk", "alert_count"})
	for _, b := range snap.Buckets {
		_ = cw.Write([]string{
			strconv.FormatFloat(b.Lat, 'f', 3, 64),
			strconv.FormatFloat(b.Lon, 'f', 3, 64),
			strconv.FormatFloat(b.TotalRisk, 'f', -1, 64),
			strconv.Itoa(b.AlertCount),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WritePriority writes the per-camera risk table as CSV.
func WritePriority(w io.Writer, snap *Snapshot) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"camera_id", "total_risk", "alert_count"})
	for _, c := range snap.Cameras {
		_ = cw.Write([]string{
			c.Camera,
			strconv.FormatFloat(c.TotalRisk, 'f', -1, 64),
			strconv.Itoa(c.AlertCount),
		})
	}
	cw.Flush()
	return cw.Error()
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Risk hotspots</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<script src="https://unpkg.com/leaflet.heat@0.2.0/dist/leaflet-heat.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.Center.Lat}}, {{.Center.Lon}}], 15);
L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var heat = {{.Heat}};
if (heat.length) {
  L.heatLayer(heat, {radius: 25, blur: 15}).addTo(map);
}
var hotspots = {{.Markers}};
hotspots.forEach(function (b) {
  L.marker([b.lat, b.lon]).addTo(map)
    .bindPopup('Risk ' + b.total_risk + ' from ' + b.alert_count + ' alerts');
});
</script>
</body>
</html>
`))

type mapData struct {
	Center  Point
	Heat    [][3]float64
	Markers []Bucket
}

// RenderMap writes an HTML heat map of snap.
func RenderMap(w io.Writer, snap *Snapshot) error {
	data := mapData{
		Center:  snap.Center,
		Heat:    make([][3]float64, 0, len(snap.Buckets)),
		Markers: snap.Top(MarkerCount),
	}

	var peak float64
	for _, b := range snap.Buckets {
		peak = max(peak, b.TotalRisk)
	}
	for _, b := range snap.Buckets {
		intensity := 0.0
		if peak > 0 {
			intensity = b.TotalRisk / peak
		}
		data.Heat = append(data.Heat, [3]float64{b.Lat, b.Lon, intensity})
	}

	return mapTemplate.Execute(w, data)
}

// writeAtomic writes path through a temporary file in the same directory
// and renames it into place, so readers see either the old or the new file.
func writeAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
