package app

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

const DateLayout = "2006-01-02"

// Schedule describes the fixed weekly presentation pattern.
type Schedule struct {
	Weekdays    []time.Weekday
	Time        string // HH:MM, the only bookable time of day
	Duration    time.Duration
	WindowWeeks int
}

func DefaultSchedule() Schedule {
	return Schedule{
		Weekdays:    []time.Weekday{time.Tuesday, time.Saturday},
		Time:        "12:00",
		Duration:    30 * time.Minute,
		WindowWeeks: 4,
	}
}

// DateAvailability is a candidate date together with its occupancy.
type DateAvailability struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Time    string `json:"time"`
	Open    bool   `json:"open"`
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// CandidateDates returns the permitted weekdays in [reference, reference+7*windowWeeks),
// ascending. Only the calendar date of reference is used.
func (s Schedule) CandidateDates(windowWeeks int, reference time.Time) []time.Time {
	if windowWeeks <= 0 || len(s.Weekdays) == 0 {
		return nil
	}
	start := calendarDay(reference)
	until := start.AddDate(0, 0, windowWeeks*7-1)

	byDay := make([]rrule.Weekday, 0, len(s.Weekdays))
	seen := map[time.Weekday]bool{}
	for _, wd := range s.Weekdays {
		if seen[wd] {
			continue
		}
		seen[wd] = true
		byDay = append(byDay, rruleWeekdays[wd])
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Until:     until,
		Byweekday: byDay,
	})
	if err != nil {
		return nil
	}
	return r.All()
}

func (s Schedule) permits(wd time.Weekday) bool {
	for _, w := range s.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// ValidateSlot checks a slot requested for a new booking or a reschedule and
// returns it in canonical form.
func (s Schedule) ValidateSlot(slot Slot, today time.Time) (Slot, error) {
	d, err := time.Parse(DateLayout, slot.Date)
	if err != nil {
		return Slot{}, &ValidationError{Field: "presentation_date", Reason: "must be a YYYY-MM-DD date"}
	}
	tod, err := parseHHMM(slot.Time)
	if err != nil {
		return Slot{}, &ValidationError{Field: "presentation_time", Reason: "must be an HH:MM time"}
	}
	canonical := Slot{Date: d.Format(DateLayout), Time: tod.Format("15:04")}

	if canonical.Time != s.Time {
		return Slot{}, &ValidationError{Field: "presentation_time", Reason: "presentations start at " + s.Time}
	}
	if !s.permits(d.Weekday()) {
		return Slot{}, &ValidationError{Field: "presentation_date", Reason: d.Weekday().String() + " is not a presentation day"}
	}
	first := calendarDay(today)
	if d.Before(first) {
		return Slot{}, &ValidationError{Field: "presentation_date", Reason: "date is in the past"}
	}
	if s.WindowWeeks > 0 && !d.Before(first.AddDate(0, 0, s.WindowWeeks*7)) {
		return Slot{}, &ValidationError{Field: "presentation_date", Reason: fmt.Sprintf("date is beyond the %d-week booking window", s.WindowWeeks)}
	}
	return canonical, nil
}

// IsSlotOpen reports whether no non-cancelled appointment claims slot.
func IsSlotOpen(slot Slot, occupants []Appointment) bool {
	for _, a := range occupants {
		if a.Occupies(slot) {
			return false
		}
	}
	return true
}

// Except drops the appointment with the given id, so a reschedule never
// collides with its own current slot.
func Except(list []Appointment, id string) []Appointment {
	if id == "" {
		return list
	}
	out := make([]Appointment, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// AvailableDates lists the candidate dates of the next weeks and whether each is still open.
// excludeID names an appointment being edited; it does not block its own slot.
func (a *App) AvailableDates(ctx context.Context, reference time.Time, weeks int, excludeID string) ([]DateAvailability, error) {
	appts, err := a.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	occupants := Except(appts, excludeID)

	dates := a.Schedule.CandidateDates(weeks, reference)
	out := make([]DateAvailability, 0, len(dates))
	for _, d := range dates {
		slot := Slot{Date: d.Format(DateLayout), Time: a.Schedule.Time}
		out = append(out, DateAvailability{
			Date:    slot.Date,
			Weekday: d.Weekday().String(),
			Time:    slot.Time,
			Open:    IsSlotOpen(slot, occupants),
		})
	}
	return out, nil
}

// SlotOpen re-reads the persisted appointments and checks a single slot.
func (a *App) SlotOpen(ctx context.Context, slot Slot, excludeID string) (bool, error) {
	appts, err := a.Store.ListAll(ctx)
	if err != nil {
		return false, err
	}
	return IsSlotOpen(slot, Except(appts, excludeID)), nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseHHMM accepts exactly "HH:MM" or "HH:MM:SS".
func parseHHMM(s string) (time.Time, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return t, nil
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time string: %s", s)
	}
	return t, nil
}
