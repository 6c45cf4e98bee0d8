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
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

// writeTestGrid writes a small NetCDF flux file: a 2-d variable
// emi_so2[lat, lon] and a 4-d variable emi_nox[time, lev, lat, lon]
// with singleton leading axes.
func writeTestGrid(t *testing.T, path string, nx, ny int, vals []float32) {
	t.Helper()
	h := cdf.NewHeader([]string{"time", "lev", "lat", "lon"}, []int{1, 1, ny, nx})
	h.AddVariable("emi_so2", []string{"lat", "lon"}, []float32{0.})
	h.AddAttribute("emi_so2", "units", "kg m-2 s-1")
	h.AddVariable("emi_nox", []string{"time", "lev", "lat", "lon"}, []float32{0.})
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			t.Fatal(err)
		}
	}
	fid, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := cdf.Create(fid, h)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []string{"emi_so2", "emi_nox"} {
		w := f.Writer(v, nil, nil)
		if _, err := w.Write(vals); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
}

func TestGridFieldLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	// 4x2 grid, row-major, longitude starting at 0 degrees.
	writeTestGrid(t, path, 4, 2, []float32{0, 1, 2, 3, 4, 5, 6, 7})

	l, err := NewGridFieldLoader(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Each row's halves are swapped to move the origin to -180 degrees.
	want := []float64{2, 3, 0, 1, 6, 7, 4, 5}
	for _, variable := range []string{"emi_so2", "emi_nox"} {
		field, err := l.Load(path, variable)
		if err != nil {
			t.Fatal(err)
		}
		if len(field.Elements) != 8 {
			t.Fatalf("%s: want 8 elements but have %d", variable, len(field.Elements))
		}
		for i, w := range want {
			if field.Elements[i] != w {
				t.Errorf("%s element %d: want %g but have %g", variable, i, w, field.Elements[i])
			}
		}
	}
}

func TestLoadTimeZones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tz.nc")
	h := cdf.NewHeader([]string{"lat", "lon"}, []int{2, 4})
	h.AddVariable("timezone", []string{"lat", "lon"}, []float32{0.})
	h.AddVariable("filled", []string{"lat", "lon"}, []float32{0.})
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			t.Fatal(err)
		}
	}
	fid, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := cdf.Create(fid, h)
	if err != nil {
		t.Fatal(err)
	}
	// Row-major on the 0-degree origin grid; offsets are rounded to the
	// nearest hour.
	vals := []float32{-5, -5, 3, 3.4, 0, 0, 11, 11}
	if _, err := f.Writer("timezone", nil, nil).Write(vals); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	filled := []float32{-5, -5, 3, 3, 0, 0, -9999, 11}
	if _, err := f.Writer("filled", nil, nil).Write(filled); err != nil && err != io.EOF {
		t.Fatal(err)
	}

	l, err := NewGridFieldLoader(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	offsets, err := l.LoadTimeZones(path, "timezone")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{3, 3, -5, -5, 11, 11, 0, 0}
	if !reflect.DeepEqual(offsets, want) {
		t.Errorf("offsets: want %v but have %v", want, offsets)
	}
	// A fill value must not be rounded into a real offset.
	if _, err := l.LoadTimeZones(path, "filled"); err == nil {
		t.Error("want error for fill value in mask but have nil")
	}
}

func TestGridFieldLoadMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestGrid(t, path, 4, 2, make([]float32, 8))
	l, err := NewGridFieldLoader(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(path, "emi_co"); err == nil {
		t.Error("want error for missing variable but have nil")
	}
}

func TestGridFieldLoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeTestGrid(t, path, 4, 2, make([]float32, 8))
	l, err := NewGridFieldLoader(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Load(path, "emi_so2")
	if err == nil {
		t.Fatal("want error for wrong grid shape but have nil")
	}
	e, ok := AsGridDimensionError(err)
	if !ok {
		t.Fatalf("want GridDimensionError but have %T", err)
	}
	if e.Cells != 8 || e.Want != 32 {
		t.Errorf("want cells 8 expected 32 but have %d %d", e.Cells, e.Want)
	}
}

func TestNewGridFieldLoaderInvalid(t *testing.T) {
	if _, err := NewGridFieldLoader(0, 10); err == nil {
		t.Error("want error for zero grid dimension but have nil")
	}
}
