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
	"sort"
	"strconv"
	"strings"
	"time"
)

// An InventoryFile is one monthly gridded flux file for one bulk
// pollutant: the NetCDF path and the variable holding the flux.
type InventoryFile struct {
	Sector    string
	Pollutant string
	Variable  string
	Month     time.Month
	Path      string
}

// An Inventory indexes the monthly input files of a sector by
// (pollutant, month). Exactly one file per pair is allowed.
type Inventory struct {
	Sector string
	files  map[string]map[time.Month]InventoryFile // pollutant -> month -> file
}

// LoadInventory reads an inventory list: CSV records of
// sector,pollutant,variable,month,path. Rows for other sectors are
// skipped; a second file for the same (pollutant, month) is fatal. When
// keep is non-empty, pollutants outside it are skipped.
func LoadInventory(r io.Reader, sector string, keep []string) (*Inventory, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	inv := &Inventory{
		Sector: sector,
		files:  make(map[string]map[time.Month]InventoryFile),
	}
	cr := newProfileReader(r)
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, configErrorf("reading inventory list: %v", err)
		}
		if len(rec) < 5 {
			return nil, configErrorf("inventory record %v has fewer than 5 fields", rec)
		}
		m, err := strconv.Atoi(strings.TrimSpace(rec[3]))
		if err != nil {
			if first { // header line
				first = false
				continue
			}
			return nil, configErrorf("inventory record %v: bad month %q", rec, rec[3])
		}
		first = false
		if m < 1 || m > 12 {
			return nil, configErrorf("inventory record %v: month %d out of range", rec, m)
		}
		f := InventoryFile{
			Sector:    strings.TrimSpace(rec[0]),
			Pollutant: strings.TrimSpace(rec[1]),
			Variable:  strings.TrimSpace(rec[2]),
			Month:     time.Month(m),
			Path:      os.ExpandEnv(strings.TrimSpace(rec[4])),
		}
		if f.Sector != sector {
			continue
		}
		if len(keepSet) > 0 && !keepSet[f.Pollutant] {
			continue
		}
		if _, ok := inv.files[f.Pollutant]; !ok {
			inv.files[f.Pollutant] = make(map[time.Month]InventoryFile)
		}
		if dup, ok := inv.files[f.Pollutant][f.Month]; ok {
			return nil, configErrorf("inventory lists %s and %s for pollutant %s month %d",
				dup.Path, f.Path, f.Pollutant, m)
		}
		inv.files[f.Pollutant][f.Month] = f
	}
	if len(inv.files) == 0 {
		return nil, configErrorf("inventory list has no usable rows for sector %s", sector)
	}
	return inv, nil
}

// LoadInventoryFile loads an inventory list from a file path.
func LoadInventoryFile(path, sector string, keep []string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("opening inventory list %s: %v", path, err)
	}
	defer f.Close()
	return LoadInventory(f, sector, keep)
}

// Pollutants returns the sorted bulk pollutants in the inventory.
func (inv *Inventory) Pollutants() []string {
	out := make([]string, 0, len(inv.files))
	for p := range inv.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Files returns the files for one month, keyed by pollutant.
func (inv *Inventory) Files(month time.Month) map[string]InventoryFile {
	out := make(map[string]InventoryFile)
	for poll, byMonth := range inv.files {
		if f, ok := byMonth[month]; ok {
			out[poll] = f
		}
	}
	return out
}
