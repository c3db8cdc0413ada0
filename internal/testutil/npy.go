package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"testing"
)

// NPYArray describes one array member of an NPY/NPZ test fixture.
type NPYArray struct {
	Dtype   string // "<f8" or "<f4"
	Shape   []int
	Data    []float64 // row-major, len must equal the product of Shape
	Fortran bool
}

// WriteNPY writes arr as a version 1.0 NPY stream. The header is padded to
// the 64-byte alignment numpy itself emits, so readers that validate
// alignment accept the fixture.
func WriteNPY(w io.Writer, arr NPYArray) error {
	n := 1
	for _, d := range arr.Shape {
		n *= d
	}
	if len(arr.Data) != n {
		return fmt.Errorf("npy fixture: %d values for shape %v (want %d)", len(arr.Data), arr.Shape, n)
	}

	order := "False"
	if arr.Fortran {
		order = "True"
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': %s, }",
		arr.Dtype, order, shapeTuple(arr.Shape))

	// magic(6) + version(2) + headerLen(2) + header + padding + '\n',
	// total a multiple of 64.
	pad := (64 - (10+len(header)+1)%64) % 64
	headerLen := len(header) + pad + 1

	var buf bytes.Buffer
	buf.Write([]byte("\x93NUMPY"))
	buf.WriteByte(1)
	buf.WriteByte(0)
	if err := binary.Write(&buf, binary.LittleEndian, uint16(headerLen)); err != nil {
		return err
	}
	buf.WriteString(header)
	buf.WriteString(strings.Repeat(" ", pad))
	buf.WriteByte('\n')

	switch arr.Dtype {
	case "<f8":
		if err := binary.Write(&buf, binary.LittleEndian, arr.Data); err != nil {
			return err
		}
	case "<f4":
		vals := make([]float32, len(arr.Data))
		for i, v := range arr.Data {
			vals[i] = float32(v)
		}
		if err := binary.Write(&buf, binary.LittleEndian, vals); err != nil {
			return err
		}
	default:
		return fmt.Errorf("npy fixture: unsupported dtype %q", arr.Dtype)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// NPZBytes builds an NPZ archive (a zip of NPY members, names carrying the
// ".npy" suffix numpy's savez emits) from the given keyed arrays.
func NPZBytes(t *testing.T, entries map[string]NPYArray) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for key, arr := range entries {
		w, err := zw.Create(key + ".npy")
		if err != nil {
			t.Fatalf("npz fixture: create %s: %v", key, err)
		}
		if err := WriteNPY(w, arr); err != nil {
			t.Fatalf("npz fixture: write %s: %v", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("npz fixture: close: %v", err)
	}
	return buf.Bytes()
}

// DepthNPZ builds a single-entry "points" NPZ holding an (h, w, 3) float64
// grid, the shape depth estimation exports per frame.
func DepthNPZ(t *testing.T, h, w int, pts []float64) []byte {
	t.Helper()
	return NPZBytes(t, map[string]NPYArray{
		"points": {Dtype: "<f8", Shape: []int{h, w, 3}, Data: pts},
	})
}

func shapeTuple(shape []int) string {
	if len(shape) == 1 {
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
