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
	"reflect"
)

// RunConfig holds the run configuration, read from a JSON file. Paths
// may contain environment variables in $VAR or ${VAR} form.
type RunConfig struct {
	// Case labels the run; it appears in output file names.
	Case string `json:"case"`
	// Sector is the inventory sector to process.
	Sector string `json:"sector"`
	// OutputDir receives the per-date output files.
	OutputDir string `json:"output_dir"`
	// Jobs is the number of representative dates processed
	// concurrently. Zero means one.
	Jobs int `json:"jobs"`

	Htap       HtapConfig       `json:"htap"`
	Mpas       MpasConfig       `json:"mpas"`
	Temporal   TemporalConfig   `json:"temporal"`
	Speciation SpeciationConfig `json:"speciation"`
}

// HtapConfig describes the gridded input inventory.
type HtapConfig struct {
	// InventoryList is the CSV list of monthly flux files.
	InventoryList string `json:"inventory_list"`
	// Nx and Ny are the source grid dimensions.
	Nx int `json:"nx"`
	Ny int `json:"ny"`
	// Pollutants optionally restricts the bulk pollutants processed.
	Pollutants []string `json:"pollutants"`
	// TimezoneFile and TimezoneVariable optionally name a source-grid
	// NetCDF variable holding a UTC hour offset per cell, enabling
	// timezone-aware temporal allocation.
	TimezoneFile     string `json:"timezone_file"`
	TimezoneVariable string `json:"timezone_variable"`
}

// MpasConfig describes the target mesh and the source-to-mesh mapping.
type MpasConfig struct {
	// MeshFile is the MPAS grid description providing nCells and the
	// global attributes copied to the output.
	MeshFile string `json:"mesh_file"`
	// WeightTable is the precomputed intersection-weight CSV.
	WeightTable string `json:"weight_table"`
}

// TemporalConfig names the temporal profile tables.
type TemporalConfig struct {
	Tref string `json:"tref"`
	// TproMonthly is optional: the inventory files already carry
	// monthly totals, so the monthly profile is informational.
	TproMonthly string `json:"tpro_monthly"`
	TproWeekly  string `json:"tpro_weekly"`
	TproHourly  string `json:"tpro_hourly"`
	MergeDates  string `json:"merge_dates"`
	// RepApproach is the merge-dates column to use, such as aveday_N.
	RepApproach string `json:"rep_approach"`
}

// SpeciationConfig names the speciation tables.
type SpeciationConfig struct {
	Gsref string `json:"gsref"`
	Gspro string `json:"gspro"`
	// Mechanism optionally names a TOML table of species molecular
	// weight overrides.
	Mechanism string `json:"mechanism"`
}

// ReadConfig reads and validates a run configuration.
func ReadConfig(r io.Reader) (*RunConfig, error) {
	c := new(RunConfig)
	d := json.NewDecoder(r)
	if err := d.Decode(c); err != nil {
		return nil, configErrorf("parsing run configuration: %v", err)
	}
	c.expandEnv(reflect.ValueOf(c).Elem())
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadConfigFile reads a run configuration from a file path.
func ReadConfigFile(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("opening run configuration %s: %v", path, err)
	}
	defer f.Close()
	return ReadConfig(f)
}

// expandEnv recursively expands environment variables in every string
// field of the configuration.
func (c *RunConfig) expandEnv(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		v.SetString(os.ExpandEnv(v.String()))
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			c.expandEnv(v.Field(i))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			c.expandEnv(v.Index(i))
		}
	}
}

// check validates the configuration, accumulating every problem so the
// user sees them all at once.
func (c *RunConfig) check() error {
	e := new(ErrCat)
	if c.Sector == "" {
		e.Add(configErrorf("sector must be set"))
	}
	if c.Case == "" {
		e.Add(configErrorf("case must be set"))
	}
	if c.Htap.Nx <= 0 || c.Htap.Ny <= 0 {
		e.Add(configErrorf("htap grid dimensions nx=%d ny=%d must be positive",
			c.Htap.Nx, c.Htap.Ny))
	}
	if c.Temporal.RepApproach == "" {
		e.Add(configErrorf("temporal rep_approach must be set"))
	}
	e.statOS(c.Htap.InventoryList, "htap inventory_list")
	if c.Htap.TimezoneVariable != "" {
		e.statOS(c.Htap.TimezoneFile, "htap timezone_file")
	}
	e.statOS(c.Mpas.MeshFile, "mpas mesh_file")
	e.statOS(c.Mpas.WeightTable, "mpas weight_table")
	e.statOS(c.Temporal.Tref, "temporal tref")
	if c.Temporal.TproMonthly != "" {
		e.statOS(c.Temporal.TproMonthly, "temporal tpro_monthly")
	}
	e.statOS(c.Temporal.TproWeekly, "temporal tpro_weekly")
	e.statOS(c.Temporal.TproHourly, "temporal tpro_hourly")
	e.statOS(c.Temporal.MergeDates, "temporal merge_dates")
	e.statOS(c.Speciation.Gsref, "speciation gsref")
	e.statOS(c.Speciation.Gspro, "speciation gspro")
	if c.Speciation.Mechanism != "" {
		e.statOS(c.Speciation.Mechanism, "speciation mechanism")
	}
	if c.OutputDir != "" {
		if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
			e.Add(configErrorf("creating output_dir %s: %v", c.OutputDir, err))
		}
	}
	return e.Err()
}
