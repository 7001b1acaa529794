// Package ical reads and writes RFC 5545 calendars for lesson feeds and holiday imports.
package ical

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	productID     = "-//sma-timetable-api//lessons//EN"
	dateLayout    = "20060102"
	maxImportDays = 366
)

var dateTimeLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	dateLayout,
}

// Event is a single calendar entry rendered into a VEVENT.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Cancelled   bool
}

// Write serialises events into an iCalendar document.
func Write(w io.Writer, name string, events []Event, stamp time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		vevent := cal.AddEvent(e.UID)
		vevent.SetDtStampTime(stamp.UTC())
		vevent.SetStartAt(e.Start.UTC())
		vevent.SetEndAt(e.End.UTC())
		vevent.SetSummary(e.Summary)
		if e.Description != "" {
			vevent.SetDescription(e.Description)
		}
		if e.Location != "" {
			vevent.SetLocation(e.Location)
		}
		status := "CONFIRMED"
		if e.Cancelled {
			status = "CANCELLED"
		}
		vevent.SetProperty(ics.ComponentPropertyStatus, status)
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

// ParseDates returns every calendar date covered by the VEVENTs in r, sorted and de-duplicated.
// DTEND is exclusive for all-day events; timed events cover each date they touch.
func ParseDates(r io.Reader) ([]time.Time, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	seen := make(map[time.Time]struct{})
	for _, evt := range cal.Events() {
		start, allDay, err := propertyTime(evt, ics.ComponentPropertyDtStart)
		if err != nil {
			continue
		}
		last := start
		if end, endAllDay, err := propertyTime(evt, ics.ComponentPropertyDtEnd); err == nil && end.After(start) {
			last = end
			if endAllDay || allDay || isMidnight(end) {
				last = end.AddDate(0, 0, -1)
			}
		}

		day := truncate(start)
		last = truncate(last)
		for i := 0; !day.After(last) && i < maxImportDays; i++ {
			seen[day] = struct{}{}
			day = day.AddDate(0, 0, 1)
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func propertyTime(evt *ics.VEvent, name ics.ComponentProperty) (time.Time, bool, error) {
	prop := evt.GetProperty(name)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", name)
	}
	value := strings.TrimSpace(prop.Value)

	loc := time.UTC
	for k, v := range prop.ICalParameters {
		if strings.EqualFold(k, "TZID") && len(v) > 0 {
			if tz, err := time.LoadLocation(v[0]); err == nil {
				loc = tz
			}
		}
	}

	for _, layout := range dateTimeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			continue
		}
		return t, layout == dateLayout, nil
	}
	return time.Time{}, false, fmt.Errorf("unsupported date value %q", value)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
