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
	"errors"
	"fmt"
	"os"
	"strings"
)

// GridDimensionError means that the cell count of a loaded field or mask
// disagrees with the source-grid size established by the remap operator.
// It is fatal: all inputs are deterministic local files, so a mismatch is
// a configuration defect rather than something worth retrying.
type GridDimensionError struct {
	File     string
	Variable string
	Cells    int // cell count found in the file
	Want     int // cell count established by the remap operator
}

func (e *GridDimensionError) Error() string {
	return fmt.Sprintf("htap2mpas: %s: variable %s has %d cells; expected %d",
		e.File, e.Variable, e.Cells, e.Want)
}

// MissingSpeciationError means an inventory pollutant has no speciation
// cross-reference rows. Output written without the split would be wrong,
// so the run aborts instead of silently carrying the pollutant through.
type MissingSpeciationError struct {
	Sector    string
	Pollutant string
}

func (e *MissingSpeciationError) Error() string {
	return fmt.Sprintf("htap2mpas: no speciation profile for pollutant %s in sector %s",
		e.Pollutant, e.Sector)
}

// ConfigError is a malformed or missing required table or setting.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "htap2mpas: " + e.msg }

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ErrCat collects errors while configuration is being validated and
// reports them all at once, instead of just the first one.
type ErrCat struct {
	str string
}

// Add adds an error to the catalogue, ignoring nil and duplicates.
func (e *ErrCat) Add(err error) {
	if err != nil && strings.Index(e.str, err.Error()) == -1 {
		e.str += err.Error() + "\n"
	}
}

// statOS adds an error to the catalogue if path does not exist.
func (e *ErrCat) statOS(path, varname string) {
	if _, err := os.Stat(path); err != nil {
		e.Add(fmt.Errorf("%s: file %q does not exist", varname, path))
	}
}

// Err returns the collected errors as a single ConfigError, or nil if
// nothing was collected.
func (e *ErrCat) Err() error {
	if e.str != "" {
		return &ConfigError{msg: strings.TrimSuffix(e.str, "\n")}
	}
	return nil
}

// AsGridDimensionError reports whether err is a GridDimensionError.
func AsGridDimensionError(err error) (*GridDimensionError, bool) {
	var e *GridDimensionError
	ok := errors.As(err, &e)
	return e, ok
}

// AsMissingSpeciationError reports whether err is a MissingSpeciationError.
func AsMissingSpeciationError(err error) (*MissingSpeciationError, bool) {
	var e *MissingSpeciationError
	ok := errors.As(err, &e)
	return e, ok
}
