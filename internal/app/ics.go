package app

import (
	"context"
	"time"

	ical "github.com/arran4/golang-ical"
)

const icalFloatingLayout = "20060102T150405"

// CalendarFeed renders the live presentations as an iCalendar document.
// Times are floating: the schedule has no timezone of its own.
func (a *App) CalendarFeed(ctx context.Context) (string, error) {
	appts, err := a.Store.ListAll(ctx)
	if err != nil {
		return "", err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//presentation-scheduler//bookings//EN")

	stamp := a.now().UTC()
	for _, appt := range appts {
		if appt.Status == StatusCancelled {
			continue
		}
		start, err := time.Parse(DateLayout+" 15:04", appt.PresentationDate+" "+appt.PresentationTime)
		if err != nil {
			a.Logger.Warn("skipping appointment with malformed slot in feed", "id", appt.ID, "slot", appt.Slot().String())
			continue
		}
		end := start.Add(a.Schedule.Duration)

		ev := cal.AddEvent(appt.ID)
		ev.SetDtStampTime(stamp)
		ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(icalFloatingLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(icalFloatingLayout))
		ev.SetSummary(appt.CompanyName + " - " + appt.ProjectName)
		ev.SetLocation(appt.Area)
		ev.SetDescription("Representative: " + appt.Representative + "\nStatus: " + string(appt.Status))
		ev.SetStatus(ical.ObjectStatusConfirmed)
	}
	return cal.Serialize(), nil
}
