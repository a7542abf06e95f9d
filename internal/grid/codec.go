package grid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	fileMagic   = "VBG1"
	fileVersion = 1
)

// fileHeader precedes the cell array in a .vbg grid file.
type fileHeader struct {
	Magic   string       `msgpack:"magic"`
	Version int          `msgpack:"version"`
	Kind    string       `msgpack:"kind"`
	Rows    int          `msgpack:"rows"`
	Cols    int          `msgpack:"cols"`
	NoData  float64      `msgpack:"nodata"`
	Geo     GeoTransform `msgpack:"geo"`
}

func kindOf[T Cell]() string {
	var zero T
	return reflect.TypeOf(zero).Kind().String()
}

// Encode writes g to w as a msgpack header followed by the cell array.
func Encode[T Cell](w io.Writer, g *Grid[T]) error {
	enc := msgpack.NewEncoder(w)
	h := fileHeader{
		Magic:   fileMagic,
		Version: fileVersion,
		Kind:    kindOf[T](),
		Rows:    g.rows,
		Cols:    g.cols,
		NoData:  float64(g.nodata),
		Geo:     g.geo,
	}
	if err := enc.Encode(&h); err != nil {
		return fmt.Errorf("encoding grid header: %w", err)
	}
	if err := enc.Encode(g.data); err != nil {
		return fmt.Errorf("encoding grid cells: %w", err)
	}
	return nil
}

// Decode reads a grid written by Encode. The file must hold cells of type T.
func Decode[T Cell](r io.Reader) (*Grid[T], error) {
	dec := msgpack.NewDecoder(r)
	var h fileHeader
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadFormat, err)
	}
	if h.Magic != fileMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFormat, h.Magic)
	}
	if want := kindOf[T](); h.Kind != want {
		return nil, fmt.Errorf("%w: file holds %s, want %s", ErrKindMismatch, h.Kind, want)
	}
	var data []T
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: cells: %v", ErrBadFormat, err)
	}
	g, err := FromSlice(h.Rows, h.Cols, data, T(h.NoData))
	if err != nil {
		return nil, err
	}
	g.geo = h.Geo
	return g, nil
}

// WriteFile saves g to path. Paths ending in .asc are written as ESRI ASCII
// grids, everything else as msgpack.
func WriteFile[T Cell](path string, g *Grid[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if isASCII(path) {
		err = EncodeASCII(w, g)
	} else {
		err = Encode(w, g)
	}
	if err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads a grid of type T from path.
func ReadFile[T Cell](path string) (*Grid[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if isASCII(path) {
		g, err := DecodeASCII(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return Convert(g, castNoData[T](g.nodata)), nil
	}
	g, err := Decode[T](r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// castNoData carries an ASCII nodata value over to T. Values T cannot hold
// become the all-ones value: 255 for uint8 (MaskNoData), -1 for signed types.
func castNoData[T Cell](v float64) T {
	if t := T(v); float64(t) == v {
		return t
	}
	var fallback T
	fallback--
	return fallback
}

func isASCII(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".asc")
}

// ReadFileAs loads a grid from path and converts its cells to T, whatever
// cell type the file holds.
func ReadFileAs[T Cell](path string) (*Grid[T], error) {
	if isASCII(path) {
		return ReadFile[T](path)
	}
	kind, err := peekKind(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "uint8":
		return convertFile[T, uint8](path)
	case "int8":
		return convertFile[T, int8](path)
	case "int16":
		return convertFile[T, int16](path)
	case "int32":
		return convertFile[T, int32](path)
	case "int64":
		return convertFile[T, int64](path)
	case "float32":
		return convertFile[T, float32](path)
	case "float64":
		return convertFile[T, float64](path)
	}
	return nil, fmt.Errorf("%s: %w: unknown cell type %q", path, ErrBadFormat, kind)
}

func convertFile[T, U Cell](path string) (*Grid[T], error) {
	g, err := ReadFile[U](path)
	if err != nil {
		return nil, err
	}
	if kindOf[T]() == kindOf[U]() {
		return any(g).(*Grid[T]), nil
	}
	return Convert(g, castNoData[T](float64(g.nodata))), nil
}

func peekKind(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h fileHeader
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&h); err != nil {
		return "", fmt.Errorf("%s: %w: header: %v", path, ErrBadFormat, err)
	}
	if h.Magic != fileMagic {
		return "", fmt.Errorf("%s: %w: magic %q", path, ErrBadFormat, h.Magic)
	}
	return h.Kind, nil
}
