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
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ctessum/unit"
)

// A RunReport accumulates run totals so a processed run can be audited
// against its inputs: the monthly bulk mass read per pollutant, the
// mass allocated to each representative date, and any advisory
// speciation warnings. It is safe for use from concurrent date workers.
type RunReport struct {
	mx sync.Mutex

	Case   string
	Sector string

	// monthly bulk input mass per pollutant
	monthTotals map[time.Month]map[string]*unit.Unit
	// mass allocated out per representative date per pollutant
	dateTotals map[time.Time]map[string]*unit.Unit
	// pollutants whose speciation fractions exceed 1, with the sum
	fractionWarnings map[string]float64
	// representative dates allocated zero for a pollutant
	zeroAllocations []string
}

// NewRunReport creates an empty report.
func NewRunReport(caseName, sector string) *RunReport {
	return &RunReport{
		Case:             caseName,
		Sector:           sector,
		monthTotals:      make(map[time.Month]map[string]*unit.Unit),
		dateTotals:       make(map[time.Time]map[string]*unit.Unit),
		fractionWarnings: make(map[string]float64),
	}
}

// massUnit is kilograms.
var massUnit = unit.Dimensions{unit.MassDim: 1}

// AddMonthTotal records the bulk input mass (kg) read for one
// pollutant in one month.
func (r *RunReport) AddMonthTotal(month time.Month, pollutant string, kg float64) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.monthTotals[month]; !ok {
		r.monthTotals[month] = make(map[string]*unit.Unit)
	}
	addUnit(r.monthTotals[month], pollutant, kg)
}

// AddDateTotal records the mass (kg) allocated to one representative
// date for one pollutant.
func (r *RunReport) AddDateTotal(date time.Time, pollutant string, kg float64) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.dateTotals[date]; !ok {
		r.dateTotals[date] = make(map[string]*unit.Unit)
	}
	addUnit(r.dateTotals[date], pollutant, kg)
}

func addUnit(m map[string]*unit.Unit, key string, kg float64) {
	if u, ok := m[key]; ok {
		m[key] = unit.Add(u, unit.New(kg, massUnit))
	} else {
		m[key] = unit.New(kg, massUnit)
	}
}

// AddFractionWarnings merges advisory speciation fraction sums.
func (r *RunReport) AddFractionWarnings(over map[string]float64) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for poll, sum := range over {
		r.fractionWarnings[poll] = sum
	}
}

// AddZeroAllocation notes a representative date that received no
// temporal fractions for a pollutant.
func (r *RunReport) AddZeroAllocation(date time.Time, pollutant string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.zeroAllocations = append(r.zeroAllocations,
		date.Format("2006-01-02")+" "+pollutant)
}

// reportJSON is the serialized form of the report. Masses are reported
// in kilograms.
type reportJSON struct {
	Case             string                        `json:"case"`
	Sector           string                        `json:"sector"`
	MonthTotalsKg    map[string]map[string]float64 `json:"month_totals_kg"`
	DateTotalsKg     map[string]map[string]float64 `json:"date_totals_kg"`
	FractionWarnings map[string]float64            `json:"fraction_warnings,omitempty"`
	ZeroAllocations  []string                      `json:"zero_allocations,omitempty"`
}

// WriteJSON writes the report.
func (r *RunReport) WriteJSON(w io.Writer) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := reportJSON{
		Case:             r.Case,
		Sector:           r.Sector,
		MonthTotalsKg:    make(map[string]map[string]float64),
		DateTotalsKg:     make(map[string]map[string]float64),
		FractionWarnings: r.fractionWarnings,
		ZeroAllocations:  r.zeroAllocations,
	}
	for month, polls := range r.monthTotals {
		mm := make(map[string]float64)
		for poll, u := range polls {
			mm[poll] = u.Value()
		}
		out.MonthTotalsKg[month.String()] = mm
	}
	for date, polls := range r.dateTotals {
		mm := make(map[string]float64)
		for poll, u := range polls {
			mm[poll] = u.Value()
		}
		out.DateTotalsKg[date.Format("2006-01-02")] = mm
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(out)
}

// WriteJSONFile writes the report to a file path.
func (r *RunReport) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
