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
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Temporal profile levels in the cross-reference.
const (
	trefMonthly = "MONTHLY"
	trefWeekly  = "WEEKLY"
	trefAllday  = "ALLDAY"
)

// HourFractions is a representative date's share of the monthly total,
// split over the 24 hours of the day.
type HourFractions [24]float64

// Sum returns the total fraction allocated to the date.
func (f *HourFractions) Sum() float64 {
	s := 0.
	for _, v := range f {
		s += v
	}
	return s
}

// A FractionTable holds the month-to-hour allocation fractions for every
// representative date of the run. It is derived once, before the month
// loop begins, and read-only afterwards.
type FractionTable map[time.Time]*HourFractions

// TZFractionTable stratifies a FractionTable by timezone hour offset.
type TZFractionTable map[int]FractionTable

// TemporalProfileEngine composes SMOKE-style temporal profile tables
// into per-date, per-hour allocation fractions of the monthly total.
// The cross-reference (TREF), monthly (TPRO_MONTHLY), day-of-week
// (TPRO_WEEKLY) and diurnal (TPRO_HOURLY) tables are loaded one at a
// time; the merge-dates table maps each sequential day to the
// representative day processed for it. The monthly table is not part of
// the month-to-hour composition because the inventory files already
// carry monthly totals; it is kept for annual-to-month checks.
type TemporalProfileEngine struct {
	Sector      string
	RepApproach string

	tref    map[string]string    // profile level -> profile code
	monthly map[string][]float64 // profile code -> 12 month fractions, January first
	weekly  map[string][]float64 // profile code -> 7 day-of-week fractions, Monday first
	hourly  map[string][]float64 // profile code -> 24 hour fractions
	dates   []mergeDate

	log *logrus.Logger
}

type mergeDate struct {
	date time.Time // sequential calendar day
	rep  time.Time // representative day processed for it
}

// NewTemporalProfileEngine creates an engine for the given inventory
// sector and representative-day approach (a column name in the
// merge-dates table, commonly aveday_N, mwdss_N or week_N).
func NewTemporalProfileEngine(sector, repApproach string, log *logrus.Logger) *TemporalProfileEngine {
	return &TemporalProfileEngine{
		Sector:      sector,
		RepApproach: repApproach,
		tref:        make(map[string]string),
		monthly:     make(map[string][]float64),
		weekly:      make(map[string][]float64),
		hourly:      make(map[string][]float64),
		log:         log,
	}
}

// LoadRef reads the temporal cross-reference (TREF). All temporal
// cross-referencing is at the sector level; the first row seen for each
// profile level wins.
func (t *TemporalProfileEngine) LoadRef(r io.Reader) error {
	cr := newProfileReader(r)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return configErrorf("reading temporal cross-reference: %v", err)
		}
		// sector,fips,fac,unit,relpt,proc,poll,dt_level,prof
		if len(rec) < 9 {
			continue
		}
		if strings.TrimSpace(rec[0]) != t.Sector {
			continue
		}
		level := strings.ToUpper(strings.TrimSpace(rec[7]))
		if _, ok := t.tref[level]; !ok {
			t.tref[level] = strings.TrimSpace(rec[8])
		}
	}
	if len(t.tref) == 0 {
		return configErrorf("temporal cross-reference has no rows for sector %s", t.Sector)
	}
	return nil
}

// LoadMonthly reads the monthly profile table (TPRO_MONTHLY): a profile
// code followed by 12 month weights, January through December,
// renormalized to fractions.
func (t *TemporalProfileEngine) LoadMonthly(r io.Reader) error {
	return t.loadProfile(r, "monthly", 12, t.monthly)
}

// LoadWeekly reads the day-of-week profile table (TPRO_WEEKLY): a
// profile code followed by 7 weights, Monday through Sunday,
// renormalized to fractions.
func (t *TemporalProfileEngine) LoadWeekly(r io.Reader) error {
	return t.loadProfile(r, "weekly", 7, t.weekly)
}

// LoadHourly reads the diurnal profile table (TPRO_HOURLY): a profile
// code followed by 24 hour weights, renormalized to fractions.
func (t *TemporalProfileEngine) LoadHourly(r io.Reader) error {
	return t.loadProfile(r, "hourly", 24, t.hourly)
}

func (t *TemporalProfileEngine) loadProfile(r io.Reader, name string, n int, dst map[string][]float64) error {
	cr := newProfileReader(r)
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return configErrorf("reading %s profile table: %v", name, err)
		}
		if len(rec) < n+1 {
			return configErrorf("%s profile record %v has fewer than %d fields", name, rec, n+1)
		}
		vals := make([]float64, n)
		ok := true
		for i := 0; i < n; i++ {
			vals[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			if first { // header line
				first = false
				continue
			}
			return configErrorf("%s profile record %v has a non-numeric weight", name, rec)
		}
		first = false
		renormalize(vals)
		dst[strings.TrimSpace(rec[0])] = vals
	}
	if len(dst) == 0 {
		return configErrorf("%s profile table is empty", name)
	}
	return nil
}

// renormalize scales profile weights so they sum to 1.
func renormalize(vals []float64) {
	total := 0.
	for _, v := range vals {
		total += v
	}
	if total == 0 {
		return
	}
	for i := range vals {
		vals[i] /= total
	}
}

// LoadDates reads the merge-dates table mapping sequential days to
// representative days. The table has a header naming each
// representative-day approach; the engine keeps the column matching its
// configured approach.
func (t *TemporalProfileEngine) LoadDates(r io.Reader) error {
	cr := newProfileReader(r)
	header, err := cr.Read()
	if err != nil {
		return configErrorf("reading merge-dates header: %v", err)
	}
	dateCol, repCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "date":
			dateCol = i
		case t.RepApproach:
			repCol = i
		}
	}
	if dateCol < 0 || repCol < 0 {
		return configErrorf("merge-dates table has no %q column", t.RepApproach)
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return configErrorf("reading merge-dates table: %v", err)
		}
		if len(rec) <= dateCol || len(rec) <= repCol {
			return configErrorf("merge-dates row %v is missing columns", rec)
		}
		d, err := time.Parse("20060102", strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return configErrorf("merge-dates date %q: %v", rec[dateCol], err)
		}
		rep, err := time.Parse("20060102", strings.TrimSpace(rec[repCol]))
		if err != nil {
			return configErrorf("merge-dates representative day %q: %v", rec[repCol], err)
		}
		t.dates = append(t.dates, mergeDate{date: d, rep: rep})
	}
	if len(t.dates) == 0 {
		return configErrorf("merge-dates table is empty")
	}
	return nil
}

// RepDates returns the distinct representative dates in first-seen
// order, optionally restricted to one month (0 means all months).
func (t *TemporalProfileEngine) RepDates(month time.Month) []time.Time {
	var out []time.Time
	seen := make(map[time.Time]bool)
	for _, d := range t.dates {
		if month != 0 && d.rep.Month() != month {
			continue
		}
		if !seen[d.rep] {
			seen[d.rep] = true
			out = append(out, d.rep)
		}
	}
	return out
}

// DaysRepresented counts how many sequential days map to each
// representative date.
func (t *TemporalProfileEngine) DaysRepresented(rep time.Time) int {
	n := 0
	for _, d := range t.dates {
		if d.rep.Equal(rep) {
			n++
		}
	}
	return n
}

// Months returns the distinct months covered by the merge-dates table,
// in first-seen order.
func (t *TemporalProfileEngine) Months() []time.Month {
	var out []time.Month
	seen := make(map[time.Month]bool)
	for _, d := range t.dates {
		if !seen[d.date.Month()] {
			seen[d.date.Month()] = true
			out = append(out, d.date.Month())
		}
	}
	return out
}

// MonthToHour derives the month-to-hour allocation fractions for every
// representative date: the day-of-week fraction scaled from weeks to
// days of the month, times the diurnal fraction for the hour. Summed
// over the sequential days of a month, the fractions add to 1.
func (t *TemporalProfileEngine) MonthToHour() (FractionTable, error) {
	if len(t.dates) == 0 {
		return nil, configErrorf("merge-dates table must be loaded before the temporal calculation")
	}
	wCode, ok := t.tref[trefWeekly]
	if !ok {
		return nil, configErrorf("no WEEKLY cross-reference for sector %s", t.Sector)
	}
	wPro, ok := t.weekly[wCode]
	if !ok {
		return nil, configErrorf("weekly profile %s for sector %s is not in the table", wCode, t.Sector)
	}
	hCode, ok := t.tref[trefAllday]
	if !ok {
		return nil, configErrorf("no ALLDAY cross-reference for sector %s", t.Sector)
	}
	hPro, ok := t.hourly[hCode]
	if !ok {
		return nil, configErrorf("hourly profile %s for sector %s is not in the table", hCode, t.Sector)
	}

	fracs := make(FractionTable)
	for _, d := range t.dates {
		if _, ok := fracs[d.rep]; ok {
			continue
		}
		dow := mondayWeekday(d.date)
		dayFrac := 7. / float64(daysInMonth(d.rep)) * wPro[dow]
		f := new(HourFractions)
		for h := 0; h < 24; h++ {
			f[h] = dayFrac * hPro[h]
		}
		fracs[d.rep] = f
	}
	return fracs, nil
}

// MonthFraction returns the sector's annual-to-month fraction for one
// month from the monthly profile table. The inventory files already
// carry monthly totals, so the fraction is informational; the second
// return value is false when no monthly table or MONTHLY
// cross-reference is loaded.
func (t *TemporalProfileEngine) MonthFraction(month time.Month) (float64, bool) {
	code, ok := t.tref[trefMonthly]
	if !ok {
		return 0, false
	}
	pro, ok := t.monthly[code]
	if !ok {
		return 0, false
	}
	return pro[month-1], true
}

// MakeTZAware remaps the fraction table so that cells in each timezone
// offset receive the fraction curve of their local hour, while the hour
// index of the result stays anchored to the reference clock. The input
// is monthly: a local time crossing a month boundary keeps the curves of
// the month being processed.
func (t *TemporalProfileEngine) MakeTZAware(fracs FractionTable, offsets []int) (TZFractionTable, error) {
	type monthDOW struct {
		month time.Month
		dow   int
	}
	// Representative date for each (month, day-of-week), used by the
	// week and mwdss approaches to find the local day's curve.
	dowMap := make(map[monthDOW]time.Time)
	for rep := range fracs {
		key := monthDOW{rep.Month(), mondayWeekday(rep)}
		if cur, ok := dowMap[key]; !ok || rep.Before(cur) {
			dowMap[key] = rep
		}
	}

	out := make(TZFractionTable, len(offsets))
	for _, tz := range offsets {
		if _, ok := out[tz]; ok {
			continue
		}
		table := make(FractionTable, len(fracs))
		for date := range fracs {
			f := new(HourFractions)
			for h := 0; h < 24; h++ {
				ltime := date.Add(time.Duration(h+tz) * time.Hour)
				lhour := ltime.Hour()
				var ldate time.Time
				switch {
				case strings.HasPrefix(t.RepApproach, "aveday"):
					// one average day per month; only the hour shifts
					ldate = date
				case strings.HasPrefix(t.RepApproach, "all"):
					ldate = time.Date(ltime.Year(), ltime.Month(), ltime.Day(), 0, 0, 0, 0, time.UTC)
				case strings.HasPrefix(t.RepApproach, "week"):
					ldate = dowMap[monthDOW{date.Month(), mondayWeekday(ltime)}]
				case strings.HasPrefix(t.RepApproach, "mwdss"):
					dow := mondayWeekday(ltime)
					if dow >= 1 && dow <= 4 {
						dow = 1 // non-Monday weekdays share the Tuesday curve
					}
					ldate = dowMap[monthDOW{date.Month(), dow}]
				default:
					return nil, configErrorf("invalid representative-day approach %q", t.RepApproach)
				}
				if lcurve, ok := fracs[ldate]; ok {
					f[h] = lcurve[lhour]
				}
			}
			table[date] = f
		}
		out[tz] = table
	}
	return out, nil
}

// Fractions looks up the curve for one representative date, returning
// zeros when the date has no profile rows. That is not fatal: the
// downstream multiplication yields zero allocation, but it is logged
// because it can hide a gap in the input tables.
func (t *TemporalProfileEngine) Fractions(fracs FractionTable, date time.Time) *HourFractions {
	if f, ok := fracs[date]; ok {
		return f
	}
	if t.log != nil {
		t.log.WithFields(logrus.Fields{
			"sector": t.Sector,
			"date":   date.Format("2006-01-02"),
		}).Warn("no temporal profile fractions for date; allocating zero")
	}
	return new(HourFractions)
}

// LoadFiles loads the profile tables from their file paths. Empty paths
// are skipped so callers can load a subset in tests.
func (t *TemporalProfileEngine) LoadFiles(tref, monthly, weekly, hourly, dates string) error {
	loaders := []struct {
		path string
		fn   func(io.Reader) error
	}{
		{tref, t.LoadRef},
		{monthly, t.LoadMonthly},
		{weekly, t.LoadWeekly},
		{hourly, t.LoadHourly},
		{dates, t.LoadDates},
	}
	for _, l := range loaders {
		if l.path == "" {
			continue
		}
		if t.log != nil {
			t.log.WithField("file", l.path).Info("loading temporal table")
		}
		f, err := os.Open(l.path)
		if err != nil {
			return configErrorf("opening temporal table %s: %v", l.path, err)
		}
		err = l.fn(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// mondayWeekday returns the day of week with Monday as 0, matching the
// day-of-week profile table layout.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// daysInMonth returns the calendar length of the month containing t.
func daysInMonth(t time.Time) int {
	t2 := time.Date(t.Year(), t.Month(), 32, 0, 0, 0, 0, time.UTC)
	return 32 - t2.Day()
}

// newProfileReader wraps a profile table in a CSV reader with the
// comment and field conventions shared by the SMOKE-style tables.
func newProfileReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}
