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
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pollutant names involved in the coarse particulate derivation.
const (
	pollPM10 = "PM10"
	pollPM25 = "PM2_5"
	pollPMC  = "PMC"
)

const secondsPerDay = 86400.

// An AllocationPipeline runs the allocate-remap-speciate sequence: it
// loads each month's gridded bulk fields, expands the monthly totals to
// hourly values on the source grid using the temporal profiles, remaps
// the hourly stacks onto the mesh, splits the bulk pollutants into
// model species, and writes one output file per representative date.
type AllocationPipeline struct {
	Remap      *RemapOperator
	Loader     *GridFieldLoader
	Temporal   *TemporalProfileEngine
	Speciation *SpeciationEngine
	Inventory  *Inventory
	Mesh       *MeshInfo
	Report     *RunReport

	// CellOffsets holds a UTC hour offset per source grid cell; nil
	// disables timezone-aware allocation.
	CellOffsets []int

	OutputDir string
	Case      string
	// Jobs is the number of representative dates processed
	// concurrently within a month.
	Jobs int

	Log *logrus.Logger
}

// Run processes every month covered by the merge-dates table. All
// speciation assignments are resolved before the first field is loaded
// so a missing profile stops the run before any output exists.
func (p *AllocationPipeline) Run(ctx context.Context) error {
	pollutants := effectivePollutants(p.Inventory.Pollutants())
	species, err := p.Speciation.SpeciesList(pollutants)
	if err != nil {
		return err
	}
	p.Report.AddFractionWarnings(p.Speciation.CheckFractions(pollutants))

	fracs, err := p.Temporal.MonthToHour()
	if err != nil {
		return err
	}
	var tzFracs TZFractionTable
	if p.CellOffsets != nil {
		if len(p.CellOffsets) != p.Loader.SourceCells() {
			return configErrorf("timezone map has %d cells; source grid has %d",
				len(p.CellOffsets), p.Loader.SourceCells())
		}
		tzFracs, err = p.Temporal.MakeTZAware(fracs, distinctOffsets(p.CellOffsets))
		if err != nil {
			return err
		}
	}

	for _, month := range p.Temporal.Months() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runMonth(ctx, month, fracs, tzFracs, species); err != nil {
			return err
		}
	}
	return nil
}

// runMonth loads the month's bulk fields, then processes the month's
// representative dates concurrently. The fields are discarded when the
// month completes.
func (p *AllocationPipeline) runMonth(ctx context.Context, month time.Month,
	fracs FractionTable, tzFracs TZFractionTable, species []SpeciesFactor) error {

	entry := p.Log.WithFields(logrus.Fields{
		"sector": p.Inventory.Sector,
		"month":  month.String(),
	})
	if mf, ok := p.Temporal.MonthFraction(month); ok {
		// share of the sector's annual total this month carries
		entry = entry.WithField("monthFraction", fmt.Sprintf("%.4f", mf))
	}
	entry.Info("processing month")

	fields, secsInMonth, err := p.loadMonth(month)
	if err != nil {
		return err
	}

	dates := p.Temporal.RepDates(month)
	if len(dates) == 0 {
		p.Log.WithField("month", month.String()).Warn("no representative dates in month")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := p.Jobs
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)
	for _, date := range dates {
		date := date
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.runDate(date, fields, secsInMonth, fracs, tzFracs, species)
		})
	}
	return g.Wait()
}

// loadMonth reads the month's field for every inventory pollutant and
// applies the coarse particulate derivation. The fields stay on the
// source grid; remapping happens per representative date after the
// hourly expansion.
func (p *AllocationPipeline) loadMonth(month time.Month) (map[string]*sparse.DenseArray, float64, error) {
	files := p.Inventory.Files(month)
	if len(files) == 0 {
		return nil, 0, configErrorf("inventory has no files for sector %s month %s",
			p.Inventory.Sector, month)
	}
	fields := make(map[string]*sparse.DenseArray, len(files))
	var secsInMonth float64
	for poll, f := range files {
		p.Log.WithFields(logrus.Fields{
			"pollutant": poll,
			"file":      f.Path,
		}).Info("loading gridded field")
		field, err := p.Loader.Load(f.Path, f.Variable)
		if err != nil {
			return nil, 0, err
		}
		fields[poll] = field
		if secsInMonth == 0 {
			// all files in a month share its calendar length
			rep := p.Temporal.RepDates(month)
			if len(rep) > 0 {
				secsInMonth = float64(daysInMonth(rep[0])) * secondsPerDay
			}
		}
	}
	if err := derivePMC(fields); err != nil {
		return nil, 0, err
	}
	for poll, field := range fields {
		p.Report.AddMonthTotal(month, poll, field.Sum()*secsInMonth)
	}
	return fields, secsInMonth, nil
}

// runDate expands the month's fields to hourly stacks on the source
// grid for one representative date, remaps the stacks onto the mesh,
// speciates them, and writes the date's output file.
func (p *AllocationPipeline) runDate(date time.Time,
	fields map[string]*sparse.DenseArray, secsInMonth float64,
	fracs FractionTable, tzFracs TZFractionTable, species []SpeciesFactor) error {

	p.Log.WithField("date", date.Format("2006-01-02")).Info("processing representative date")

	merged := make(map[string]*SpeciatedField)
	for _, poll := range sortedKeys(fields) {
		stack := p.hourlyStack(date, fields[poll], secsInMonth, fracs, tzFracs)
		remapped, err := p.Remap.Apply(stack)
		if err != nil {
			return fmt.Errorf("remapping %s for %s: %w", poll, date.Format("2006-01-02"), err)
		}
		p.Report.AddDateTotal(date, poll, remapped.Sum())
		if remapped.Sum() == 0 {
			p.Report.AddZeroAllocation(date, poll)
		}
		sfields, err := p.Speciation.Split(poll, remapped)
		if err != nil {
			return err
		}
		for _, f := range sfields {
			if m, ok := merged[f.Species]; ok {
				m.Data.AddDense(f.Data)
			} else {
				f := f
				merged[f.Species] = &f
			}
		}
	}

	out := make([]SpeciatedField, 0, len(species))
	for _, sp := range species {
		if m, ok := merged[sp.Species]; ok {
			out = append(out, *m)
		} else {
			out = append(out, SpeciatedField{
				Species: sp.Species,
				Units:   sp.Units(),
				Data:    sparse.ZerosDense(p.Remap.TargetCells(), 24),
			})
		}
	}

	path := filepath.Join(p.OutputDir, fmt.Sprintf("%s_%s_%s.nc",
		p.Case, p.Inventory.Sector, date.Format("20060102")))
	w, err := NewDateWriter(path, date, p.Mesh, species, p.Inventory.Sector)
	if err != nil {
		return err
	}
	for h := 0; h < hoursPerFile; h++ {
		if err := w.WriteHour(h, out); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	p.Log.WithField("file", path).Info("wrote output file")
	return nil
}

// hourlyStack expands a flat source-grid field to a [cells][24] stack:
// each hour is the monthly value times the date's hourly fraction of
// the month. With timezone-aware allocation each cell uses the fraction
// curve of its own offset.
func (p *AllocationPipeline) hourlyStack(date time.Time, field *sparse.DenseArray,
	secsInMonth float64, fracs FractionTable, tzFracs TZFractionTable) *sparse.DenseArray {

	cells := len(field.Elements)
	out := sparse.ZerosDense(cells, 24)
	if tzFracs == nil {
		curve := p.Temporal.Fractions(fracs, date)
		for c := 0; c < cells; c++ {
			v := field.Elements[c] * secsInMonth
			if v == 0 {
				continue
			}
			for h := 0; h < 24; h++ {
				out.Elements[c*24+h] = v * curve[h]
			}
		}
		return out
	}
	for c := 0; c < cells; c++ {
		v := field.Elements[c] * secsInMonth
		if v == 0 {
			continue
		}
		curve := p.Temporal.Fractions(tzFracs[p.CellOffsets[c]], date)
		for h := 0; h < 24; h++ {
			out.Elements[c*24+h] = v * curve[h]
		}
	}
	return out
}

// derivePMC replaces the fine and total particulate fields with a
// coarse particulate field, PMC = PM10 - PM2_5, clamped at zero where
// the inputs disagree. Both source pollutants must be present together.
func derivePMC(fields map[string]*sparse.DenseArray) error {
	pm10, ok10 := fields[pollPM10]
	pm25, ok25 := fields[pollPM25]
	if !ok10 && !ok25 {
		return nil
	}
	if ok10 != ok25 {
		return configErrorf("coarse particulate derivation needs both %s and %s", pollPM10, pollPM25)
	}
	pmc := pm10.Copy()
	for i, v := range pm25.Elements {
		pmc.Elements[i] -= v
		if pmc.Elements[i] < 0 {
			pmc.Elements[i] = 0
		}
	}
	fields[pollPMC] = pmc
	delete(fields, pollPM10)
	delete(fields, pollPM25)
	return nil
}

// effectivePollutants maps the inventory pollutant list to the
// pollutants that will actually be speciated, accounting for the
// coarse particulate derivation.
func effectivePollutants(polls []string) []string {
	has10, has25 := false, false
	out := make([]string, 0, len(polls))
	for _, p := range polls {
		switch p {
		case pollPM10:
			has10 = true
		case pollPM25:
			has25 = true
		default:
			out = append(out, p)
		}
	}
	if has10 && has25 {
		out = append(out, pollPMC)
	} else {
		if has10 {
			out = append(out, pollPM10)
		}
		if has25 {
			out = append(out, pollPM25)
		}
	}
	sort.Strings(out)
	return out
}

// distinctOffsets returns the sorted distinct values in a per-cell
// offset list.
func distinctOffsets(offsets []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, tz := range offsets {
		if !seen[tz] {
			seen[tz] = true
			out = append(out, tz)
		}
	}
	sort.Ints(out)
	return out
}

// sortedKeys returns the map keys in sorted order so concurrent runs
// are deterministic.
func sortedKeys(m map[string]*sparse.DenseArray) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
