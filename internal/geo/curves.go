package geo

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// CurveFile is the YAML layout of a curve import file.
//
//	hazard: earthquake
//	curves:
//	  - id: CR
//	    points: [{x: 5, y: 0}, {x: 10, y: 1}]
type CurveFile struct {
	Hazard string      `yaml:"hazard"`
	Curves []CurveSpec `yaml:"curves"`
}

// CurveSpec is one curve of a CurveFile.
type CurveSpec struct {
	ID     string       `yaml:"id"`
	Points []vuln.Point `yaml:"points"`
}

// LoadCurves reads vulnerability curves from a .yaml/.yml or .csv file.
// A CSV table has the intensity in its first column and one curve per
// remaining column, named by the header; the hazard comes from h. YAML
// files name their own hazard, which must match h when h is given.
func LoadCurves(path string, h *hazard.Hazard) ([]*vuln.Curve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "geo: open curve file")
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseCurveYAML(f, h)
	case ".csv":
		if h == nil {
			return nil, eris.New("geo: csv curve tables need a hazard")
		}
		return ParseCurveCSV(f, *h)
	}
	return nil, eris.Errorf("geo: unsupported curve file %q", filepath.Base(path))
}

// ParseCurveYAML decodes a CurveFile.
func ParseCurveYAML(r io.Reader, want *hazard.Hazard) ([]*vuln.Curve, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geo: read curve yaml")
	}
	var file CurveFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "geo: parse curve yaml")
	}

	h, err := hazard.Parse(file.Hazard)
	if err != nil {
		return nil, eris.Wrap(err, "geo: curve yaml")
	}
	if want != nil && *want != h {
		return nil, eris.Errorf("geo: curve file is for %s, not %s", h, *want)
	}
	if len(file.Curves) == 0 {
		return nil, eris.New("geo: curve yaml has no curves")
	}

	out := make([]*vuln.Curve, 0, len(file.Curves))
	seen := make(map[vuln.CurveID]bool, len(file.Curves))
	for _, spec := range file.Curves {
		id, err := vuln.NormalizeID(h, spec.ID)
		if err != nil {
			return nil, eris.Wrap(err, "geo: curve yaml")
		}
		if seen[id] {
			return nil, eris.Errorf("geo: duplicate curve %s", id)
		}
		seen[id] = true
		out = append(out, vuln.NewCurve(h, id, spec.Points))
	}
	return out, nil
}

// ParseCurveCSV decodes a wide curve table. Blank cells are skipped, so
// curves may be sampled at different intensities.
func ParseCurveCSV(r io.Reader, h hazard.Hazard) ([]*vuln.Curve, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "geo: read curve csv header")
	}
	if len(header) < 2 {
		return nil, eris.New("geo: curve csv needs an intensity column and at least one curve")
	}

	ids := make([]vuln.CurveID, len(header)-1)
	for i, name := range header[1:] {
		id, err := vuln.NormalizeID(h, name)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: curve csv column %d", i+2)
		}
		ids[i] = id
	}
	points := make([][]vuln.Point, len(ids))

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "geo: read curve csv line %d", line)
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: curve csv line %d intensity", line)
		}
		for i := range ids {
			if i+1 >= len(row) {
				break
			}
			cell := strings.TrimSpace(row[i+1])
			if cell == "" {
				continue
			}
			y, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "geo: curve csv line %d column %s", line, ids[i])
			}
			points[i] = append(points[i], vuln.Point{X: x, Y: y})
		}
	}

	out := make([]*vuln.Curve, len(ids))
	for i, id := range ids {
		out[i] = vuln.NewCurve(h, id, points[i])
	}
	return out, nil
}
