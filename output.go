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
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

const (
	xtimeLen     = 64
	xtimeFormat  = "2006-01-02_15:04:05"
	missingValue = float32(-9.e36)
	hoursPerFile = 25 // 24 hours plus a repeat of hour 0 for interpolation
)

// MeshInfo describes the unstructured mesh the output is written on:
// the cell count and the global attributes carried over from the mesh
// file.
type MeshInfo struct {
	NCells int
	attrs  map[string]interface{}
}

// ReadMeshInfo reads the cell count and global attributes from an MPAS
// mesh or grid description file.
func ReadMeshInfo(path string) (*MeshInfo, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("opening mesh file %s: %v", path, err)
	}
	defer fid.Close()
	f, err := cdf.Open(fid)
	if err != nil {
		return nil, configErrorf("reading mesh file %s: %v", path, err)
	}
	m := &MeshInfo{attrs: make(map[string]interface{})}
	for _, v := range f.Header.Variables() {
		dims := f.Header.Dimensions(v)
		lens := f.Header.Lengths(v)
		for i, d := range dims {
			if d == "nCells" {
				m.NCells = lens[i]
			}
		}
		if m.NCells > 0 {
			break
		}
	}
	if m.NCells == 0 {
		return nil, &GridDimensionError{File: path, Variable: "nCells", Cells: 0, Want: 1}
	}
	for _, name := range f.Header.Attributes("") {
		m.attrs[name] = f.Header.GetAttribute("", name)
	}
	return m, nil
}

// A DateWriter writes one per-date MPAS-style NetCDF output file:
// an xtime character record series plus one float32 record variable
// per model species on the nCells dimension. Twenty-five hourly
// records are written, the last repeating the first hour of the
// following day. Exact zeros are stored as the missing value.
type DateWriter struct {
	f     *cdf.File
	fid   *os.File
	date  time.Time
	nrec  int
	cells int
}

// NewDateWriter creates the output file for one representative date.
// The species list must be complete before creation; the NetCDF header
// cannot be extended later.
func NewDateWriter(path string, date time.Time, mesh *MeshInfo, species []SpeciesFactor, sector string) (*DateWriter, error) {
	h := cdf.NewHeader([]string{"Time", "nCells", "StrLen"},
		[]int{0, mesh.NCells, xtimeLen})

	names := make([]string, 0, len(mesh.attrs))
	for name := range mesh.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.AddAttribute("", name, mesh.attrs[name])
	}
	h.AddAttribute("", "title", fmt.Sprintf("Hourly %s emissions created by htap2mpas version %s", sector, Version))
	h.AddAttribute("", "sector", sector)
	h.AddAttribute("", "start_date", date.Format("2006-01-02"))

	h.AddVariable("xtime", []string{"Time", "StrLen"}, "")
	for _, sp := range species {
		h.AddVariable(sp.Species, []string{"Time", "nCells"}, []float32{0.})
		h.AddAttribute(sp.Species, "units", sp.Units())
		h.AddAttribute(sp.Species, "long_name", sp.Species+" emission flux")
		h.AddAttribute(sp.Species, "missing_value", []float32{missingValue})
		h.AddAttribute(sp.Species, "_FillValue", []float32{missingValue})
	}
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return nil, fmt.Errorf("defining output header for %s: %w", path, err)
		}
	}
	fid, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file %s: %w", path, err)
	}
	f, err := cdf.Create(fid, h)
	if err != nil {
		fid.Close()
		return nil, fmt.Errorf("writing output header for %s: %w", path, err)
	}
	return &DateWriter{f: f, fid: fid, date: date, cells: mesh.NCells}, nil
}

// WriteHour writes one hourly record: the timestamp and every species
// field. hour ranges over 0 through 24; hour 24 is stamped as the first
// hour of the following day.
func (w *DateWriter) WriteHour(hour int, fields []SpeciatedField) error {
	if hour < 0 || hour >= hoursPerFile {
		return fmt.Errorf("output hour %d out of range", hour)
	}
	stamp := w.date.Add(time.Duration(hour) * time.Hour).Format(xtimeFormat)
	pad := make([]byte, xtimeLen)
	copy(pad, stamp)
	for i := len(stamp); i < xtimeLen; i++ {
		pad[i] = ' '
	}
	tw := w.f.Writer("xtime", []int{hour, 0}, []int{hour + 1, 0})
	if _, err := tw.Write(string(pad)); err != nil {
		return fmt.Errorf("writing xtime record %d: %w", hour, err)
	}
	for _, field := range fields {
		vals, err := w.hourSlice(field.Data, hour)
		if err != nil {
			return err
		}
		vw := w.f.Writer(field.Species, []int{hour, 0}, []int{hour + 1, 0})
		if _, err := vw.Write(vals); err != nil {
			return fmt.Errorf("writing %s record %d: %w", field.Species, hour, err)
		}
	}
	if hour >= w.nrec {
		w.nrec = hour + 1
	}
	return nil
}

// hourSlice extracts one hour from a [cells][24] stack as float32,
// substituting the missing value for exact zeros. Hour 24 repeats
// hour 0.
func (w *DateWriter) hourSlice(stack *sparse.DenseArray, hour int) ([]float32, error) {
	if len(stack.Shape) != 2 || stack.Shape[0] != w.cells {
		return nil, fmt.Errorf("species stack shape %v does not match %d output cells",
			stack.Shape, w.cells)
	}
	h := hour % 24
	nh := stack.Shape[1]
	out := make([]float32, w.cells)
	for c := 0; c < w.cells; c++ {
		v := stack.Elements[c*nh+h]
		if v == 0 {
			out[c] = missingValue
		} else {
			out[c] = float32(v)
		}
	}
	return out, nil
}

// Close finalizes the record count and closes the file.
func (w *DateWriter) Close() error {
	if err := cdf.UpdateNumRecs(w.fid); err != nil {
		w.fid.Close()
		return fmt.Errorf("updating record count: %w", err)
	}
	return w.fid.Close()
}
