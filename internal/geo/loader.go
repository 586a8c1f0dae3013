// Package geo imports hazard samples from point shapefiles and
// vulnerability curves from YAML or CSV tables.
package geo

import (
	"archive/zip"
	"context"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
)

// ShapefileOptions selects the attribute columns of a sample shapefile.
type ShapefileOptions struct {
	// IDField names the location id column. When empty the first of
	// loc_id, id and fid is used, else the record number.
	IDField string
	// NoData marks an unmeasured intensity in addition to blank cells.
	NoData *float64
}

// LoadSamples reads hazard samples of h from a point shapefile. path may
// be a .shp file, a .zip archive, or an http(s) URL of either; zip and
// remote sources are unpacked under tempDir. Intensity columns are named
// after the scenario fields (mmi_500, depth_100, kpa_250, mflux_5, ...).
func LoadSamples(ctx context.Context, path string, h hazard.Hazard, tempDir string, opts ShapefileOptions) ([]geospatial.Sample, error) {
	shpPath, err := resolveShapefile(ctx, path, tempDir)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	log := zap.L().With(zap.String("component", "geo.loader"), zap.String("hazard", h.String()))

	idIdx := -1
	if opts.IDField != "" {
		if idIdx = fieldIndex(reader, opts.IDField); idIdx < 0 {
			return nil, eris.Errorf("geo: id field %q not found", opts.IDField)
		}
	} else {
		for _, name := range []string{"loc_id", "id", "fid"} {
			if idIdx = fieldIndex(reader, name); idIdx >= 0 {
				break
			}
		}
	}

	fields := make(map[hazard.Scenario]int)
	for _, sc := range h.Scenarios() {
		if i := fieldIndex(reader, sc.IntensityField()); i >= 0 {
			fields[sc] = i
		}
	}
	if len(fields) == 0 {
		return nil, eris.Errorf("geo: no %s intensity fields in %s", h, filepath.Base(shpPath))
	}

	var out []geospatial.Sample
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		lon, lat, ok := pointOf(shape)
		if !ok {
			skipped++
			continue
		}

		id := ""
		if idIdx >= 0 {
			id = cleanAttr(reader.Attribute(idIdx))
		}
		if id == "" {
			id = h.String() + "-" + strconv.Itoa(n)
		}

		s := geospatial.Sample{LocationID: id, Hazard: h, Lon: lon, Lat: lat}
		for sc, i := range fields {
			s.Intensity[sc] = parseIntensity(reader.Attribute(i), opts.NoData)
		}
		out = append(out, s)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: read shapefile")
	}

	log.Info("hazard shapefile loaded",
		zap.Int("samples", len(out)),
		zap.Int("skipped", skipped),
		zap.Int("intensity_fields", len(fields)),
	)
	return out, nil
}

func pointOf(s shp.Shape) (lon, lat float64, ok bool) {
	switch p := s.(type) {
	case *shp.Point:
		return p.X, p.Y, true
	case *shp.PointZ:
		return p.X, p.Y, true
	case *shp.PointM:
		return p.X, p.Y, true
	}
	return 0, 0, false
}

func cleanAttr(v string) string {
	return strings.Trim(v, " \x00")
}

// parseIntensity maps a DBF cell to a quantity. Blank, unparseable,
// non-finite and no-data cells are Missing.
func parseIntensity(raw string, noData *float64) hazard.Quantity {
	s := cleanAttr(raw)
	if s == "" || strings.Trim(s, "*") == "" {
		return hazard.Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return hazard.Missing
	}
	if noData != nil && v == *noData {
		return hazard.Missing
	}
	return hazard.Known(v)
}

// resolveShapefile turns a local path or URL into a local .shp path.
func resolveShapefile(ctx context.Context, path, tempDir string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		dest := filepath.Join(tempDir, filepath.Base(path))
		if err := downloadFile(ctx, http.DefaultClient, path, dest); err != nil {
			return "", eris.Wrap(err, "geo: download shapefile")
		}
		path = dest
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}
	extractDir := filepath.Join(tempDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "geo: create extract dir")
	}
	if err := extractZIP(path, extractDir); err != nil {
		return "", eris.Wrap(err, "geo: extract zip")
	}
	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "geo: find .shp file")
	}
	return shpPath, nil
}

// downloadFile downloads a URL to a local file.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP extracts the files of a ZIP archive into destDir, flattening
// any directories.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}
	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
