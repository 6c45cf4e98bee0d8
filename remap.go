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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
)

// WeightTriple is one entry of the grid-to-mesh weight table: the
// fractional area contribution of source grid cell Col to mesh cell Row.
// Indices are 1-based as stored in the table file.
type WeightTriple struct {
	Row    int
	Col    int
	Weight float64
}

// RemapOperator is a sparse linear operator that moves flux fields from
// the source grid to the target mesh. It is built once from a weight
// table and is immutable afterwards, so it may be shared between
// concurrent workers. Row sums are deliberately not renormalized:
// partial coverage of a mesh cell is carried through as-is.
type RemapOperator struct {
	targetCells int
	sourceCells int

	// compressed sparse row form of the weight matrix
	rowPtr  []int
	colIdx  []int
	weights []float64
}

// NewRemapOperator builds an operator of shape targetCells×sourceCells
// from 1-based weight triples.
func NewRemapOperator(triples []WeightTriple, targetCells, sourceCells int) (*RemapOperator, error) {
	if targetCells <= 0 || sourceCells <= 0 {
		return nil, configErrorf("remap operator shape %d×%d is invalid", targetCells, sourceCells)
	}
	o := &RemapOperator{
		targetCells: targetCells,
		sourceCells: sourceCells,
		rowPtr:      make([]int, targetCells+1),
		colIdx:      make([]int, len(triples)),
		weights:     make([]float64, len(triples)),
	}
	for _, t := range triples {
		if t.Row < 1 || t.Row > targetCells {
			return nil, configErrorf("weight table row index %d outside 1..%d", t.Row, targetCells)
		}
		if t.Col < 1 || t.Col > sourceCells {
			return nil, configErrorf("weight table column index %d outside 1..%d", t.Col, sourceCells)
		}
		if t.Weight < 0 {
			return nil, configErrorf("negative weight %g at (%d,%d)", t.Weight, t.Row, t.Col)
		}
		o.rowPtr[t.Row]++
	}
	for i := 0; i < targetCells; i++ {
		o.rowPtr[i+1] += o.rowPtr[i]
	}
	next := make([]int, targetCells)
	copy(next, o.rowPtr[:targetCells])
	for _, t := range triples {
		k := next[t.Row-1]
		o.colIdx[k] = t.Col - 1
		o.weights[k] = t.Weight
		next[t.Row-1]++
	}
	return o, nil
}

// TargetCells returns the number of mesh cells the operator maps onto.
func (o *RemapOperator) TargetCells() int { return o.targetCells }

// SourceCells returns the source-grid cell count the operator expects.
func (o *RemapOperator) SourceCells() int { return o.sourceCells }

// Apply maps a sourceCells×H stack of hourly flux values onto the mesh,
// returning a targetCells×H stack. H is the number of time slices; the
// product runs in O(nonzeros × H).
func (o *RemapOperator) Apply(stack *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(stack.Shape) != 2 {
		return nil, fmt.Errorf("htap2mpas: remap input must have 2 dimensions; got %d", len(stack.Shape))
	}
	if stack.Shape[0] != o.sourceCells {
		return nil, &GridDimensionError{
			Variable: "remap input",
			Cells:    stack.Shape[0],
			Want:     o.sourceCells,
		}
	}
	h := stack.Shape[1]
	out := sparse.ZerosDense(o.targetCells, h)
	for i := 0; i < o.targetCells; i++ {
		base := i * h
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			w := o.weights[k]
			src := o.colIdx[k] * h
			for t := 0; t < h; t++ {
				out.Elements[base+t] += w * stack.Elements[src+t]
			}
		}
	}
	return out, nil
}

// RowSums returns the total incoming weight of each mesh cell. Useful
// for checking grid-to-mesh coverage; sums below 1 indicate mesh cells
// only partly covered by the source grid.
func (o *RemapOperator) RowSums() []float64 {
	sums := make([]float64, o.targetCells)
	for i := 0; i < o.targetCells; i++ {
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			sums[i] += o.weights[k]
		}
	}
	return sums
}

// ReadWeightTable reads 1-based (row, col, weight) triples from a
// comma-separated table. Lines starting with '#' are comments and a
// header line of column names is skipped.
func ReadWeightTable(r io.Reader) ([]WeightTriple, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var triples []WeightTriple
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, configErrorf("reading weight table: %v", err)
		}
		if len(rec) < 3 {
			return nil, configErrorf("weight table record %v has fewer than 3 fields", rec)
		}
		row, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if len(triples) == 0 { // header line
				continue
			}
			return nil, configErrorf("weight table row index %q: %v", rec[0], err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, configErrorf("weight table column index %q: %v", rec[1], err)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, configErrorf("weight table weight %q: %v", rec[2], err)
		}
		triples = append(triples, WeightTriple{Row: row, Col: col, Weight: w})
	}
	if len(triples) == 0 {
		return nil, configErrorf("weight table is empty")
	}
	// Row-sorted input makes CSR construction deterministic for equal
	// inputs regardless of how the table was written.
	sort.SliceStable(triples, func(i, j int) bool { return triples[i].Row < triples[j].Row })
	return triples, nil
}

// LoadRemapOperator reads the weight table at path and builds the
// operator for the given shape.
func LoadRemapOperator(path string, targetCells, sourceCells int) (*RemapOperator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("opening weight table %s: %v", path, err)
	}
	defer f.Close()
	triples, err := ReadWeightTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewRemapOperator(triples, targetCells, sourceCells)
}
