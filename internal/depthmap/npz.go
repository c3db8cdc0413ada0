package depthmap

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sbinet/npyio"

	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

// gridKeys are the NPZ member names probed for the point grid, in
// preference order. Depth exporters write "points"; older captures used
// "xyz".
var gridKeys = []string{"points", "xyz"}

var warnExtraChannel sync.Once

// ParseNPZ decodes an in-memory NPZ archive into a Map.
func ParseNPZ(data []byte) (*Map, error) {
	return ReadNPZ(bytes.NewReader(data), int64(len(data)))
}

// LoadNPZ reads and decodes the named NPZ file.
func LoadNPZ(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("depthmap: %w", err)
	}
	m, err := ParseNPZ(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return m, nil
}

// ReadNPZ decodes an NPZ archive (a zip of NPY members) into a Map. The
// grid member must be a C-order float32 or float64 array of shape
// (H, W, 3); a fourth channel is tolerated and dropped.
func ReadNPZ(r io.ReaderAt, size int64) (*Map, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("depthmap: open npz: %w", err)
	}

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[strings.TrimSuffix(f.Name, ".npy")] = f
	}

	for _, key := range gridKeys {
		if f, ok := members[key]; ok {
			m, err := parseGridMember(f)
			if err != nil {
				return nil, fmt.Errorf("depthmap: member %s: %w", f.Name, err)
			}
			return m, nil
		}
	}

	available := make([]string, 0, len(members))
	for name := range members {
		available = append(available, name)
	}
	sort.Strings(available)
	return nil, fmt.Errorf("depthmap: no %s member in npz (have: %s)",
		strings.Join(gridKeys, "/"), strings.Join(available, ", "))
}

func parseGridMember(f *zip.File) (*Map, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	nr, err := npyio.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	descr := nr.Header.Descr
	if descr.Fortran {
		return nil, fmt.Errorf("fortran-order arrays are not supported")
	}
	shape := descr.Shape
	if len(shape) != 3 || shape[0] <= 0 || shape[1] <= 0 {
		return nil, fmt.Errorf("grid shape %v, want (H, W, 3)", shape)
	}
	channels := shape[2]
	switch channels {
	case 3:
	case 4:
		warnExtraChannel.Do(func() {
			monitoring.Logf("depthmap: 4-channel point grid, ignoring the extra channel")
		})
	default:
		return nil, fmt.Errorf("grid shape %v, want (H, W, 3)", shape)
	}

	h, w := shape[0], shape[1]
	n := h * w * channels

	var raw []float64
	switch descr.Type {
	case "<f8":
		raw = make([]float64, n)
		if err := nr.Read(&raw); err != nil {
			return nil, fmt.Errorf("read float64 grid: %w", err)
		}
	case "<f4":
		raw32 := make([]float32, n)
		if err := nr.Read(&raw32); err != nil {
			return nil, fmt.Errorf("read float32 grid: %w", err)
		}
		raw = make([]float64, n)
		for i, v := range raw32 {
			raw[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("dtype %q, want <f4 or <f8", descr.Type)
	}

	pts := make([]Point3, h*w)
	for i := range pts {
		base := i * channels
		pts[i] = Point3{X: raw[base], Y: raw[base+1], Z: raw[base+2]}
	}
	return NewMap(h, w, pts)
}
