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
	"reflect"
	"strings"
	"testing"
	"time"
)

func testInventoryList() string {
	return `sector,pollutant,variable,month,path
energy,SO2,emi_so2,1,/data/htap/so2_jan.nc
energy,SO2,emi_so2,2,/data/htap/so2_feb.nc
energy,NOX,emi_nox,1,/data/htap/nox_jan.nc
transport,SO2,emi_so2,1,/data/htap/tra_so2_jan.nc
`
}

func TestLoadInventory(t *testing.T) {
	inv, err := LoadInventory(strings.NewReader(testInventoryList()), "energy", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"NOX", "SO2"}; !reflect.DeepEqual(inv.Pollutants(), want) {
		t.Errorf("pollutants: want %v but have %v", want, inv.Pollutants())
	}
	jan := inv.Files(time.January)
	if len(jan) != 2 {
		t.Fatalf("want 2 January files but have %d", len(jan))
	}
	if f := jan["SO2"]; f.Path != "/data/htap/so2_jan.nc" || f.Variable != "emi_so2" {
		t.Errorf("unexpected January SO2 file: %+v", f)
	}
	feb := inv.Files(time.February)
	if len(feb) != 1 {
		t.Errorf("want 1 February file but have %d", len(feb))
	}
	if mar := inv.Files(time.March); len(mar) != 0 {
		t.Errorf("want no March files but have %d", len(mar))
	}
}

func TestLoadInventoryKeep(t *testing.T) {
	inv, err := LoadInventory(strings.NewReader(testInventoryList()), "energy", []string{"NOX"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"NOX"}; !reflect.DeepEqual(inv.Pollutants(), want) {
		t.Errorf("pollutants: want %v but have %v", want, inv.Pollutants())
	}
}

func TestLoadInventoryDuplicateFatal(t *testing.T) {
	list := `energy,SO2,emi_so2,1,/data/a.nc
energy,SO2,emi_so2,1,/data/b.nc
`
	if _, err := LoadInventory(strings.NewReader(list), "energy", nil); err == nil {
		t.Error("want error for duplicate pollutant-month pair but have nil")
	}
}

func TestLoadInventoryBadMonth(t *testing.T) {
	list := "energy,SO2,emi_so2,13,/data/a.nc\n"
	if _, err := LoadInventory(strings.NewReader(list), "energy", nil); err == nil {
		t.Error("want error for out-of-range month but have nil")
	}
}

func TestLoadInventoryEmpty(t *testing.T) {
	if _, err := LoadInventory(strings.NewReader(testInventoryList()), "shipping", nil); err == nil {
		t.Error("want error for sector with no rows but have nil")
	}
}
