package grid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultASCIINoData is used when an ASCII grid omits NODATA_value.
const DefaultASCIINoData = -9999.0

// DecodeASCII reads an ESRI ASCII grid (.asc). Rows are stored top to bottom.
func DecodeASCII(r io.Reader) (*Grid[float64], error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header key %q has no value", ErrBadFormat, tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: header %s: %v", ErrBadFormat, tok, err)
		}
		header[key] = v
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: ncols/nrows missing", ErrBadFormat)
	}
	nodata, ok := header["nodata_value"]
	if !ok {
		nodata = DefaultASCIINoData
	}
	cell := header["cellsize"]
	geo := GeoTransform{CellSize: cell, OriginX: header["xllcorner"]}
	// Origin is the upper-left corner; ASCII grids give the lower-left.
	geo.OriginY = header["yllcorner"] + float64(rows)*cell
	if x, ok := header["xllcenter"]; ok {
		geo.OriginX = x - cell/2
	}
	if y, ok := header["yllcenter"]; ok {
		geo.OriginY = y - cell/2 + float64(rows)*cell
	}

	data := make([]float64, 0, rows*cols)
	if first == "" {
		return nil, fmt.Errorf("%w: no cell values", ErrBadFormat)
	}
	tok := first
	for {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrBadFormat, len(data), err)
		}
		data = append(data, v)
		if len(data) == rows*cols || !sc.Scan() {
			break
		}
		tok = sc.Text()
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	g, err := FromSlice(rows, cols, data, nodata)
	if err != nil {
		return nil, err
	}
	g.geo = geo
	return g, nil
}

// EncodeASCII writes g as an ESRI ASCII grid.
func EncodeASCII[T Cell](w io.Writer, g *Grid[T]) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.cols, g.rows)
	fmt.Fprintf(bw, "xllcorner %s\n", fmtFloat(g.geo.OriginX))
	fmt.Fprintf(bw, "yllcorner %s\n", fmtFloat(g.geo.OriginY-float64(g.rows)*g.geo.CellSize))
	fmt.Fprintf(bw, "cellsize %s\n", fmtFloat(g.geo.CellSize))
	nodata := float64(g.nodata)
	if nodata != nodata {
		nodata = DefaultASCIINoData
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", fmtFloat(nodata))
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			v := g.data[r*g.cols+c]
			if g.IsNoData(v) {
				bw.WriteString(fmtFloat(nodata))
				continue
			}
			bw.WriteString(fmtFloat(float64(v)))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
