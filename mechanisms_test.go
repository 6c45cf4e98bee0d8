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
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestReadMechanism(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cb6.toml")
	mech := `name = "CB6"

[species]
PAR = 14.43
OLE = 27.65
`
	if err := ioutil.WriteFile(path, []byte(mech), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := ReadMechanism(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "CB6" {
		t.Errorf("name: want CB6 but have %s", m.Name)
	}
	if m.Species["OLE"] != 27.65 {
		t.Errorf("OLE: want 27.65 but have %g", m.Species["OLE"])
	}

	s := loadTestSpeciation(t)
	m.Apply(s)
	factors, err := s.Factors("VOC")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range factors {
		if f.Species == "PAR" && f.MW != 14.43 {
			t.Errorf("PAR molecular weight: want 14.43 but have %g", f.MW)
		}
	}
}
