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
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

func TestDerivePMC(t *testing.T) {
	pm10 := sparse.ZerosDense(4)
	pm10.Elements = []float64{10, 5, 3, 0}
	pm25 := sparse.ZerosDense(4)
	pm25.Elements = []float64{4, 5, 7, 0}
	fields := map[string]*sparse.DenseArray{
		pollPM10: pm10,
		pollPM25: pm25,
		"SO2":    sparse.ZerosDense(4),
	}
	if err := derivePMC(fields); err != nil {
		t.Fatal(err)
	}
	if _, ok := fields[pollPM10]; ok {
		t.Error("PM10 should be removed after the derivation")
	}
	if _, ok := fields[pollPM25]; ok {
		t.Error("PM2_5 should be removed after the derivation")
	}
	pmc, ok := fields[pollPMC]
	if !ok {
		t.Fatal("PMC should be added by the derivation")
	}
	// Negative differences clamp to zero.
	if want := []float64{6, 0, 0, 0}; !reflect.DeepEqual(pmc.Elements, want) {
		t.Errorf("PMC: want %v but have %v", want, pmc.Elements)
	}
}

func TestDerivePMCRequiresBoth(t *testing.T) {
	fields := map[string]*sparse.DenseArray{
		pollPM10: sparse.ZerosDense(4),
	}
	if err := derivePMC(fields); err == nil {
		t.Error("want error when only PM10 is present but have nil")
	}
}

func TestEffectivePollutants(t *testing.T) {
	have := effectivePollutants([]string{"SO2", pollPM10, "NOX", pollPM25})
	if want := []string{"NOX", pollPMC, "SO2"}; !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}
	have = effectivePollutants([]string{"SO2", pollPM25})
	if want := []string{pollPM25, "SO2"}; !reflect.DeepEqual(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

// buildTestPipeline assembles a 2-cell end-to-end pipeline: a 2x1
// source grid mapped one-to-one onto a 2-cell mesh, a flat average-day
// temporal profile for January 2017, and an identity SO2 speciation.
func buildTestPipeline(t *testing.T, dir, gsref, gspro string) *AllocationPipeline {
	t.Helper()
	log := testLogger()

	gridPath := filepath.Join(dir, "grid.nc")
	writeTestGrid(t, gridPath, 2, 1, []float32{1, 2})

	meshPath := filepath.Join(dir, "mesh.nc")
	writeTestMesh(t, meshPath, 2)
	mesh, err := ReadMeshInfo(meshPath)
	if err != nil {
		t.Fatal(err)
	}

	loader, err := NewGridFieldLoader(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	remap, err := NewRemapOperator([]WeightTriple{
		{Row: 1, Col: 1, Weight: 1},
		{Row: 2, Col: 2, Weight: 1},
	}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	temporal := loadTestEngine(t, "aveday_N", flatWeekly(), flatHourly(), avedayDates())

	spec := NewSpeciationEngine(testSector, log)
	if err := spec.LoadRef(strings.NewReader(gsref)); err != nil {
		t.Fatal(err)
	}
	if err := spec.LoadPro(strings.NewReader(gspro)); err != nil {
		t.Fatal(err)
	}

	list := fmt.Sprintf("energy,SO2,emi_so2,1,%s\n", gridPath)
	inv, err := LoadInventory(strings.NewReader(list), testSector, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &AllocationPipeline{
		Remap:      remap,
		Loader:     loader,
		Temporal:   temporal,
		Speciation: spec,
		Inventory:  inv,
		Mesh:       mesh,
		Report:     NewRunReport("test", testSector),
		OutputDir:  dir,
		Case:       "test",
		Jobs:       2,
		Log:        log,
	}
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	p := buildTestPipeline(t, dir,
		"0;SO2PROF;SO2\n", "SO2PROF;SO2;SO2;1.0;1.0\n")
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "test_energy_20170101.nc")
	fid, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := cdf.Open(fid)
	if err != nil {
		t.Fatal(err)
	}

	// With a flat average-day profile the hourly mass is the monthly
	// flux times 3600 s, and the unit conversion leaves the output flux
	// at 1000 times the input flux. The longitude origin swap puts the
	// second source cell first.
	for _, hour := range []int{0, 13, 24} {
		r := f.Reader("SO2", []int{hour, 0}, []int{hour + 1, 0})
		buf := r.Zero(2).([]float32)
		if _, err := r.Read(buf); err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(buf[0])-2000) > 1e-3 || math.Abs(float64(buf[1])-1000) > 1e-3 {
			t.Errorf("hour %d: want [2000 1000] but have %v", hour, buf)
		}
	}

	// The mass read for the month equals the mass allocated out over
	// the days each representative date stands in for.
	monthTotal := p.Report.monthTotals[time.January]["SO2"].Value()
	if want := 3. * 31. * 86400.; math.Abs(monthTotal-want) > 1e-3 {
		t.Errorf("month total: want %g but have %g", want, monthTotal)
	}
	rep := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	dateTotal := p.Report.dateTotals[rep]["SO2"].Value()
	days := float64(p.Temporal.DaysRepresented(rep))
	if math.Abs(dateTotal*days-monthTotal) > 1e-3 {
		t.Errorf("mass conservation: %g days of %g is not %g", days, dateTotal, monthTotal)
	}
}

func TestPipelineTimezoneMismatch(t *testing.T) {
	dir := t.TempDir()
	p := buildTestPipeline(t, dir,
		"0;SO2PROF;SO2\n", "SO2PROF;SO2;SO2;1.0;1.0\n")
	p.CellOffsets = []int{0, 5, -5}
	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("want error for timezone mask size but have nil")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError but have %T", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "test_energy_*.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("no output should be written before the failure; have %v", matches)
	}
}

func TestPipelineRunTimezoneAware(t *testing.T) {
	dir := t.TempDir()
	p := buildTestPipeline(t, dir,
		"0;SO2PROF;SO2\n", "SO2PROF;SO2;SO2;1.0;1.0\n")
	p.CellOffsets = []int{-5, 3}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A flat average-day curve is invariant under an hour rotation, so
	// the offsets change nothing and mass is still conserved.
	monthTotal := p.Report.monthTotals[time.January]["SO2"].Value()
	rep := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	dateTotal := p.Report.dateTotals[rep]["SO2"].Value()
	days := float64(p.Temporal.DaysRepresented(rep))
	if math.Abs(dateTotal*days-monthTotal) > 1e-3 {
		t.Errorf("mass conservation: %g days of %g is not %g", days, dateTotal, monthTotal)
	}
}

func TestPipelineMissingSpeciationFailsBeforeOutput(t *testing.T) {
	dir := t.TempDir()
	p := buildTestPipeline(t, dir,
		"0;NOXPROF;NOX\n", "NOXPROF;NOX;NO2;1.0;46.0\n")
	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("want error for unassigned pollutant but have nil")
	}
	if _, ok := AsMissingSpeciationError(err); !ok {
		t.Fatalf("want MissingSpeciationError but have %T", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "test_energy_*.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("no output should be written before the failure; have %v", matches)
	}
}
