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
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// NewPipeline assembles an AllocationPipeline from a run configuration:
// it reads the mesh, weight table, timezone map, temporal tables,
// speciation tables and inventory list, and validates that their sizes
// agree before any processing starts.
func NewPipeline(c *RunConfig, log *logrus.Logger) (*AllocationPipeline, error) {
	mesh, err := ReadMeshInfo(c.Mpas.MeshFile)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"file":   c.Mpas.MeshFile,
		"nCells": mesh.NCells,
	}).Info("read mesh")

	loader, err := NewGridFieldLoader(c.Htap.Nx, c.Htap.Ny)
	if err != nil {
		return nil, err
	}

	remap, err := LoadRemapOperator(c.Mpas.WeightTable, mesh.NCells, loader.SourceCells())
	if err != nil {
		return nil, err
	}

	var offsets []int
	if c.Htap.TimezoneVariable != "" {
		offsets, err = loader.LoadTimeZones(c.Htap.TimezoneFile, c.Htap.TimezoneVariable)
		if err != nil {
			return nil, err
		}
	}

	temporal := NewTemporalProfileEngine(c.Sector, c.Temporal.RepApproach, log)
	err = temporal.LoadFiles(c.Temporal.Tref, c.Temporal.TproMonthly,
		c.Temporal.TproWeekly, c.Temporal.TproHourly, c.Temporal.MergeDates)
	if err != nil {
		return nil, err
	}

	speciation := NewSpeciationEngine(c.Sector, log)
	if err := speciation.LoadFiles(c.Speciation.Gsref, c.Speciation.Gspro); err != nil {
		return nil, err
	}
	if c.Speciation.Mechanism != "" {
		mech, err := ReadMechanism(c.Speciation.Mechanism)
		if err != nil {
			return nil, err
		}
		mech.Apply(speciation)
	}

	inv, err := LoadInventoryFile(c.Htap.InventoryList, c.Sector, c.Htap.Pollutants)
	if err != nil {
		return nil, err
	}

	return &AllocationPipeline{
		Remap:       remap,
		Loader:      loader,
		Temporal:    temporal,
		Speciation:  speciation,
		Inventory:   inv,
		Mesh:        mesh,
		Report:      NewRunReport(c.Case, c.Sector),
		CellOffsets: offsets,
		OutputDir:   c.OutputDir,
		Case:        c.Case,
		Jobs:        c.Jobs,
		Log:         log,
	}, nil
}

// Run executes a configured run end to end and writes the run report
// next to the output files.
func Run(ctx context.Context, c *RunConfig, log *logrus.Logger) error {
	p, err := NewPipeline(c, log)
	if err != nil {
		return err
	}
	if err := p.Run(ctx); err != nil {
		return err
	}
	report := filepath.Join(c.OutputDir, c.Case+"_"+c.Sector+"_report.json")
	if err := p.Report.WriteJSONFile(report); err != nil {
		return err
	}
	log.WithField("file", report).Info("wrote run report")
	return nil
}
