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
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// gramsPerKg converts the allocated hourly mass (kg) to the output
// gram or mole basis.
const gramsPerKg = 1000.

// A SpeciesFactor is one model species produced from a bulk inventory
// pollutant: the mass fraction of the bulk assigned to the species and
// the molecular weight used to convert mass to moles. A molecular
// weight of 1 leaves the species on a mass basis.
type SpeciesFactor struct {
	Species string
	Frac    float64
	MW      float64
}

// Units returns the output unit string for the species.
func (s SpeciesFactor) Units() string {
	if s.MW == 1 {
		return "g/s/m2"
	}
	return "moles/s/m2"
}

// A SpeciatedField is a remapped hourly stack converted to one model
// species.
type SpeciatedField struct {
	Species string
	Units   string
	Data    *sparse.DenseArray
}

// SpeciationEngine resolves bulk inventory pollutants to model species
// using SMOKE-style cross-reference (GSREF) and profile (GSPRO) tables.
// Cross-reference assignments are resolved per sector with all-sector
// (blank or '0'-prefixed sector) fallback; pollutants absent from the
// cross-reference are gap-filled from the default ('0'-prefixed)
// profiles that carry them.
type SpeciationEngine struct {
	Sector string

	ref      map[string]map[string]string // sector -> pollutant -> profile code
	pro      map[string][]SpeciesFactor   // "prof;poll" -> species factors
	defPro   map[string][]SpeciesFactor   // pollutant -> '0'-prefixed profile factors
	mwOver   map[string]float64           // species -> molecular weight override
	resolved map[string][]SpeciesFactor   // pollutant -> final factors
	log      *logrus.Logger
}

// NewSpeciationEngine creates an engine for one inventory sector.
func NewSpeciationEngine(sector string, log *logrus.Logger) *SpeciationEngine {
	return &SpeciationEngine{
		Sector:   sector,
		ref:      make(map[string]map[string]string),
		pro:      make(map[string][]SpeciesFactor),
		defPro:   make(map[string][]SpeciesFactor),
		mwOver:   make(map[string]float64),
		resolved: make(map[string][]SpeciesFactor),
		log:      log,
	}
}

// SetMolecularWeight overrides the molecular weight of a species for
// every profile it appears in, typically from a mechanism table.
func (s *SpeciationEngine) SetMolecularWeight(species string, mw float64) {
	s.mwOver[species] = mw
}

// LoadRef reads the speciation cross-reference (GSREF):
// sector;profile;pollutant records, with any further SMOKE fields
// ignored. A blank or '0'-prefixed sector applies to all sectors. When
// a pollutant appears more than once at the same level, the last record
// wins.
func (s *SpeciationEngine) LoadRef(r io.Reader) error {
	cr := newProfileReader(r)
	cr.Comma = ';'
	n := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return configErrorf("reading speciation cross-reference: %v", err)
		}
		if len(rec) < 3 {
			continue
		}
		n++
		sector := strings.TrimSpace(rec[0])
		prof := strings.TrimSpace(rec[1])
		poll := strings.TrimSpace(rec[2])
		if sector == "" || strings.HasPrefix(sector, "0") {
			sector = "0"
		} else if sector != s.Sector {
			continue
		}
		if _, ok := s.ref[sector]; !ok {
			s.ref[sector] = make(map[string]string)
		}
		s.ref[sector][poll] = prof
	}
	if n == 0 {
		return configErrorf("speciation cross-reference is empty")
	}
	if len(s.ref) == 0 && s.log != nil {
		// not fatal: default profiles can still gap-fill
		s.log.WithField("sector", s.Sector).Warn("speciation cross-reference has no rows for sector")
	}
	return nil
}

// LoadPro reads the speciation profile table (GSPRO):
// profile;pollutant;species;fraction;molecular weight records. A
// repeated (pollutant, species) pair within one profile is fatal
// because it would double-count mass.
func (s *SpeciationEngine) LoadPro(r io.Reader) error {
	cr := newProfileReader(r)
	cr.Comma = ';'
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return configErrorf("reading speciation profiles: %v", err)
		}
		if len(rec) < 5 {
			continue
		}
		prof := strings.TrimSpace(rec[0])
		poll := strings.TrimSpace(rec[1])
		species := strings.TrimSpace(rec[2])
		frac, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return configErrorf("speciation profile %s %s %s: bad fraction %q",
				prof, poll, species, rec[3])
		}
		mw, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil {
			return configErrorf("speciation profile %s %s %s: bad molecular weight %q",
				prof, poll, species, rec[4])
		}
		key := prof + ";" + poll
		for _, f := range s.pro[key] {
			if f.Species == species {
				return configErrorf("duplicate species %s for pollutant %s in profile %s",
					species, poll, prof)
			}
		}
		f := SpeciesFactor{Species: species, Frac: frac, MW: mw}
		s.pro[key] = append(s.pro[key], f)
		if strings.HasPrefix(prof, "0") {
			s.defPro[poll] = append(s.defPro[poll], f)
		}
	}
	if len(s.pro) == 0 {
		return configErrorf("speciation profile table is empty")
	}
	return nil
}

// LoadFiles loads the cross-reference and profile tables from files.
func (s *SpeciationEngine) LoadFiles(ref, pro string) error {
	for _, t := range []struct {
		path string
		fn   func(io.Reader) error
	}{{ref, s.LoadRef}, {pro, s.LoadPro}} {
		if s.log != nil {
			s.log.WithField("file", t.path).Info("loading speciation table")
		}
		f, err := os.Open(t.path)
		if err != nil {
			return configErrorf("opening speciation table %s: %v", t.path, err)
		}
		err = t.fn(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// profileFor resolves the profile code for a pollutant: the sector
// assignment wins over the '0' global assignment.
func (s *SpeciationEngine) profileFor(pollutant string) (string, bool) {
	if p, ok := s.ref[s.Sector][pollutant]; ok {
		return p, true
	}
	p, ok := s.ref["0"][pollutant]
	return p, ok
}

// Factors resolves the species factors for a pollutant. A
// cross-referenced pollutant uses its assigned profile; a pollutant
// absent from the cross-reference is gap-filled from the default
// ('0'-prefixed) profiles that carry it. Molecular weight overrides are
// applied and results are cached. A pollutant that still has no profile
// rows returns a *MissingSpeciationError so the run can stop before
// output is written.
func (s *SpeciationEngine) Factors(pollutant string) ([]SpeciesFactor, error) {
	if f, ok := s.resolved[pollutant]; ok {
		return f, nil
	}
	var out []SpeciesFactor
	if prof, ok := s.profileFor(pollutant); ok {
		factors := s.pro[prof+";"+pollutant]
		if len(factors) == 0 {
			return nil, &MissingSpeciationError{Sector: s.Sector, Pollutant: pollutant}
		}
		out = make([]SpeciesFactor, len(factors))
		copy(out, factors)
	} else {
		defaults := s.defPro[pollutant]
		if len(defaults) == 0 {
			return nil, &MissingSpeciationError{Sector: s.Sector, Pollutant: pollutant}
		}
		out = make([]SpeciesFactor, len(defaults))
		copy(out, defaults)
		// Two default profiles speciating the same pollutant to the same
		// species would double-count mass.
		for i, f := range out {
			for _, g := range out[i+1:] {
				if f.Species == g.Species {
					return nil, configErrorf("duplicate default speciation of %s to species %s",
						pollutant, f.Species)
				}
			}
		}
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"sector":    s.Sector,
				"pollutant": pollutant,
			}).Debug("gap-filling unreferenced pollutant from default profiles")
		}
	}
	for i, f := range out {
		if mw, ok := s.mwOver[f.Species]; ok {
			out[i].MW = mw
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Species < out[j].Species })
	s.resolved[pollutant] = out
	return out, nil
}

// CheckFractions reports pollutants whose speciation fractions sum to
// more than 1 beyond floating-point tolerance. Mass-increasing profiles
// are legitimate for some mechanisms, so this is advisory.
func (s *SpeciationEngine) CheckFractions(pollutants []string) map[string]float64 {
	over := make(map[string]float64)
	for _, poll := range pollutants {
		factors, err := s.Factors(poll)
		if err != nil {
			continue
		}
		sum := 0.
		for _, f := range factors {
			sum += f.Frac
		}
		if sum > 1+1.e-9 {
			over[poll] = sum
			if s.log != nil {
				s.log.WithFields(logrus.Fields{
					"pollutant": poll,
					"sum":       fmt.Sprintf("%.6f", sum),
				}).Warn("speciation fractions sum to more than 1")
			}
		}
	}
	return over
}

// Split converts a remapped hourly stack of one bulk pollutant (kg per
// hour per cell) to per-species fluxes. Each output value is
//
//	v * frac * 1000 / 3600 / MW
//
// leaving g/s/m2 for MW 1 species and moles/s/m2 otherwise, for mesh
// fields already normalized per unit area.
func (s *SpeciationEngine) Split(pollutant string, stack *sparse.DenseArray) ([]SpeciatedField, error) {
	factors, err := s.Factors(pollutant)
	if err != nil {
		return nil, err
	}
	out := make([]SpeciatedField, 0, len(factors))
	for _, f := range factors {
		factor := f.Frac * gramsPerKg / 3600. / f.MW
		if math.IsNaN(factor) || math.IsInf(factor, 0) {
			return nil, configErrorf("species %s of pollutant %s: bad conversion factor", f.Species, pollutant)
		}
		out = append(out, SpeciatedField{
			Species: f.Species,
			Units:   f.Units(),
			Data:    stack.ScaleCopy(factor),
		})
	}
	return out, nil
}

// SpeciesList returns the distinct output species for a set of bulk
// pollutants, sorted, resolving all factors up front so that a missing
// assignment fails before any output is written.
func (s *SpeciationEngine) SpeciesList(pollutants []string) ([]SpeciesFactor, error) {
	seen := make(map[string]SpeciesFactor)
	for _, poll := range pollutants {
		factors, err := s.Factors(poll)
		if err != nil {
			return nil, err
		}
		for _, f := range factors {
			seen[f.Species] = f
		}
	}
	out := make([]SpeciesFactor, 0, len(seen))
	for _, f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Species < out[j].Species })
	return out, nil
}
