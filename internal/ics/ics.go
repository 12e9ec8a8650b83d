package ics

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-ical"

	"mosquee-agenda/internal/model"
)

const prodID = "-//Mosquee Agenda//Prayer Times//EN"

// emptyCalendar keeps feed consumers happy when a schedule generated no
// events: clients flag a feed without a VCALENDAR as broken.
const emptyCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + prodID + "\r\nEND:VCALENDAR\r\n"

// CalendarName is the display name used for both the ICS feed and the
// remote calendar.
func CalendarName(mosqueName string) string {
	return mosqueName + " - Prayer Times"
}

// Encode renders an event sequence as an iCalendar feed. Every component's
// DTSTAMP comes from the schedule's scrape time rather than the clock, so
// unchanged input encodes to identical output.
func Encode(sched *model.Schedule, events []model.Event) ([]byte, error) {
	if len(events) == 0 {
		return []byte(emptyCalendar), nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	setXProp(cal.Props, "X-WR-CALNAME", CalendarName(sched.Mosque.Name))
	setXProp(cal.Props, "X-WR-CALDESC", "Prayer times for "+sched.Mosque.Name)
	setXProp(cal.Props, "X-WR-TIMEZONE", sched.Mosque.Timezone)

	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(sched.ScrapedAt.UTC())

	for i := range events {
		e := &events[i]

		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, e.ID)
		ev.Props.Set(stamp)

		start := ical.NewProp(ical.PropDateTimeStart)
		start.SetDateTime(e.Start)
		ev.Props.Set(start)

		end := ical.NewProp(ical.PropDateTimeEnd)
		end.SetDateTime(e.End)
		ev.Props.Set(end)

		ev.Props.SetText(ical.PropSummary, e.Summary)
		ev.Props.SetText(ical.PropDescription, e.Description)
		if e.Location != "" {
			ev.Props.SetText(ical.PropLocation, e.Location)
		}
		if e.Latitude != 0 || e.Longitude != 0 {
			geo := ical.NewProp(ical.PropGeo)
			geo.Value = fmt.Sprintf("%g;%g", e.Latitude, e.Longitude)
			ev.Props.Set(geo)
		}
		if e.URL != "" {
			// Set the value directly to keep the default URI type; SetText
			// would both escape the URI and mislabel it as TEXT.
			urlProp := ical.NewProp(ical.PropURL)
			urlProp.Value = e.URL
			ev.Props.Set(urlProp)
		}

		for _, minutes := range e.Reminders {
			addAlarm(ev, minutes, e.Summary)
		}

		cal.Children = append(cal.Children, ev.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encoding calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// setXProp sets a nonstandard text property. SetText on a name the library
// does not know tags it with an explicit VALUE=TEXT parameter; the X-WR
// family is conventionally emitted bare, so the parameter is dropped while
// keeping the library's text escaping.
func setXProp(props ical.Props, name, text string) {
	prop := ical.NewProp(name)
	prop.SetText(text)
	prop.Params.Del(ical.ParamValue)
	props.Set(prop)
}

// addAlarm appends a DISPLAY alarm firing the given minutes before start.
func addAlarm(ev *ical.Event, minutes int, summary string) {
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, fmt.Sprintf("%s in %d minutes", summary, minutes))

	// Set the trigger value directly to keep the default DURATION type.
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", minutes)
	alarm.Props.Set(trigger)

	ev.Children = append(ev.Children, alarm)
}
