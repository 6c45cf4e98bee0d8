/*
Copyright (C) 2025-2026 the htap2mpas authors.
This file is part of htap2mpas.

htap2mpas is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

htap2mpas is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with htap2mpas.  If not, see <http://www.gnu.org/licenses/>.
*/

package htap2mpas

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// GridFieldLoader reads gridded scalar fields from NetCDF files and
// normalizes their spatial indexing to the model convention. The HTAP
// files store longitude with 0° at index zero; the model requires -180°
// at index zero, so each latitude row is split at the antimeridian
// column and the halves are swapped before the field is flattened.
type GridFieldLoader struct {
	nx int // longitude columns
	ny int // latitude rows
}

// NewGridFieldLoader creates a loader for a source grid of nx longitude
// columns by ny latitude rows.
func NewGridFieldLoader(nx, ny int) (*GridFieldLoader, error) {
	if nx <= 0 || ny <= 0 {
		return nil, configErrorf("source grid shape %d×%d is invalid", nx, ny)
	}
	return &GridFieldLoader{nx: nx, ny: ny}, nil
}

// SourceCells returns the flattened source-grid cell count.
func (l *GridFieldLoader) SourceCells() int { return l.nx * l.ny }

// Load reads the named variable from the NetCDF file at path and
// returns it as a flat array of length SourceCells. The variable may
// have either 2 spatial axes or 4 axes with leading singleton
// time/layer dimensions, which are dropped by taking index 0 on each.
func (l *GridFieldLoader) Load(path, variable string) (*sparse.DenseArray, error) {
	vals, err := l.read(path, variable)
	if err != nil {
		return nil, err
	}
	l.swapLongitudeOrigin(vals)
	out := sparse.ZerosDense(l.SourceCells())
	copy(out.Elements, vals)
	return out, nil
}

// LoadTimeZones reads the timezone mask from the NetCDF file at path:
// an integer UTC hour offset per source grid cell, returned in the same
// flattened, origin-swapped order as Load. An offset outside the UTC
// range, such as a fill value, is fatal: it would silently allocate
// zero mass to its cells through missing fraction lookups.
func (l *GridFieldLoader) LoadTimeZones(path, variable string) ([]int, error) {
	vals, err := l.read(path, variable)
	if err != nil {
		return nil, err
	}
	l.swapLongitudeOrigin(vals)
	offsets := make([]int, len(vals))
	for i, v := range vals {
		tz := int(math.Round(v))
		if tz < -12 || tz > 14 {
			return nil, configErrorf("timezone mask %s cell %d has implausible offset %g",
				variable, i, v)
		}
		offsets[i] = tz
	}
	return offsets, nil
}

func (l *GridFieldLoader) read(path, variable string) ([]float64, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("htap2mpas: opening gridded file: %w", err)
	}
	defer fid.Close()
	f, err := cdf.Open(fid)
	if err != nil {
		return nil, fmt.Errorf("htap2mpas: reading gridded file %s: %w", path, err)
	}
	dims := f.Header.Lengths(variable)
	if dims == nil {
		return nil, configErrorf("variable %s is not in file %s", variable, path)
	}

	var ny, nx int
	switch len(dims) {
	case 2:
		ny, nx = dims[0], dims[1]
	case 4:
		// leading time and layer axes must be singletons
		if dims[0] != 1 || dims[1] != 1 {
			return nil, configErrorf("variable %s in %s has non-singleton leading axes %v",
				variable, path, dims)
		}
		ny, nx = dims[2], dims[3]
	default:
		return nil, configErrorf("variable %s in %s has %d dimensions; expected 2 or 4",
			variable, path, len(dims))
	}
	if ny*nx != l.SourceCells() {
		return nil, &GridDimensionError{
			File:     path,
			Variable: variable,
			Cells:    ny * nx,
			Want:     l.SourceCells(),
		}
	}

	r := f.Reader(variable, nil, nil)
	buf := r.Zero(ny * nx)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("htap2mpas: reading %s from %s: %w", variable, path, err)
	}
	vals := make([]float64, ny*nx)
	switch b := buf.(type) {
	case []float64:
		copy(vals, b)
	case []float32:
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			vals[i] = float64(v)
		}
	default:
		return nil, configErrorf("variable %s in %s has unsupported storage type %T",
			variable, path, buf)
	}
	return vals, nil
}

// swapLongitudeOrigin moves the antimeridian column to the middle of
// each latitude row, in place.
func (l *GridFieldLoader) swapLongitudeOrigin(vals []float64) {
	half := l.nx / 2
	row := make([]float64, l.nx)
	for j := 0; j < l.ny; j++ {
		r := vals[j*l.nx : (j+1)*l.nx]
		copy(row, r[half:])
		copy(row[l.nx-half:], r[:half])
		copy(r, row)
	}
}
