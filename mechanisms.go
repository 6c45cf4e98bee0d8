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
	"github.com/BurntSushi/toml"
)

// A Mechanism holds chemical-mechanism metadata that supplements the
// speciation profile tables: per-species molecular weight overrides for
// mechanism species whose profile table carries placeholder weights.
type Mechanism struct {
	Name string `toml:"name"`
	// Species maps a model species name to its molecular weight in
	// grams per mole.
	Species map[string]float64 `toml:"species"`
}

// ReadMechanism reads a mechanism description from a TOML file.
func ReadMechanism(path string) (*Mechanism, error) {
	m := new(Mechanism)
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, configErrorf("parsing mechanism file %s: %v", path, err)
	}
	return m, nil
}

// Apply installs the mechanism's molecular weights in a speciation
// engine.
func (m *Mechanism) Apply(s *SpeciationEngine) {
	for species, mw := range m.Species {
		s.SetMolecularWeight(species, mw)
	}
}
