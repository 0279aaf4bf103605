// Package ics serializes the current alerts as an iCalendar file, giving
// calendar apps that cannot be synced directly a way to import the feed.
package ics

import (
	"os"
	"time"

	ical "github.com/arran4/golang-ical"

	"mbtacal/internal/model"
)

const uidSuffix = "@mbtacal"

// Export renders alerts as a VCALENDAR payload. Each alert becomes one
// VEVENT with the same schedule the calendar sync would give it; now
// supplies the day for alerts without an active period.
func Export(alerts []model.Alert, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//mbtacal//subway alerts//EN")

	for _, a := range alerts {
		ev := model.EventForAlert(a, now)

		ve := cal.AddEvent(ev.SourceAlertID + uidSuffix)
		ve.SetDtStampTime(now)
		ve.SetSummary(ev.Summary)
		ve.SetDescription(ev.Description)

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End)
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}
	}

	return []byte(cal.Serialize())
}

// WriteFile writes the exported calendar to path.
func WriteFile(path string, alerts []model.Alert, now time.Time) error {
	return os.WriteFile(path, Export(alerts, now), 0o644)
}
