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

// Package htap2mpas converts monthly gridded HTAP emission fluxes to
// hourly, chemically speciated emission files on an MPAS unstructured
// mesh. The conversion happens in three stages: a sparse remap from the
// regular source grid to mesh cells using a precomputed intersection
// weight table, a temporal expansion from monthly totals to hourly
// values using SMOKE-style temporal profiles, and a speciation step
// splitting bulk inventory pollutants into model species using
// SMOKE-style speciation profiles.
package htap2mpas

const Website = "http://github.com/jlbeidler/htap2mpas/"
const Version = "1.1.0" // versioning scheme at: http://semver.org/
