package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"mosquee-agenda/internal/model"
	"mosquee-agenda/internal/scraper"
)

// ValidationError reports why a raw payload could not become a Schedule.
// Fields lists every offending field in discovery order.
type ValidationError struct {
	Key    string
	Fields []string
}

func (e *ValidationError) Error() string {
	msg := strings.Join(e.Fields, "; ")
	if e.Key == "" {
		return "validate: " + msg
	}
	return fmt.Sprintf("validate %s: %s", e.Key, msg)
}

// Options controls schedule validation.
type Options struct {
	// Key overrides the key derived from the source URL.
	Key string
	// Year is the calendar year the payload's month table describes.
	// Zero means the year the page was scraped.
	Year int
}

// Schedule converts a raw extracted payload into a Schedule Record, or fails
// with a *ValidationError naming every offending field. It is pure: the same
// raw input always yields the same record or the same error.
func Schedule(raw *scraper.Raw, opts Options) (*model.Schedule, error) {
	key := opts.Key
	if key == "" {
		key = model.KeyFromURL(raw.URL)
	}

	var fields []string
	fail := func(format string, args ...interface{}) {
		fields = append(fields, fmt.Sprintf(format, args...))
	}

	data := gjson.Parse(raw.Payload)

	if key == "" {
		fail("key: cannot derive from URL %q", raw.URL)
	}

	name := strings.TrimSpace(data.Get("name").String())
	if name == "" {
		fail("name: empty")
	}

	// Float() coerces non-numeric JSON to 0, a value inside both ranges, so
	// the type is checked before the bounds.
	lat := data.Get("latitude")
	switch {
	case !lat.Exists():
		fail("latitude: missing")
	case lat.Type != gjson.Number:
		fail("latitude: %q is not a number", lat.String())
	case lat.Float() < -90 || lat.Float() > 90:
		fail("latitude: %v out of range [-90,90]", lat.Float())
	}

	lon := data.Get("longitude")
	switch {
	case !lon.Exists():
		fail("longitude: missing")
	case lon.Type != gjson.Number:
		fail("longitude: %q is not a number", lon.String())
	case lon.Float() < -180 || lon.Float() > 180:
		fail("longitude: %v out of range [-180,180]", lon.Float())
	}

	tzName := strings.TrimSpace(data.Get("timezone").String())
	if tzName == "" {
		fail("timezone: missing")
	} else if _, err := time.LoadLocation(tzName); err != nil {
		fail("timezone: %q not resolvable", tzName)
	}

	year := opts.Year
	if year == 0 {
		year = raw.ScrapedAt.Year()
	}

	occurrences := flattenCalendar(data.Get("calendar"), year, fail)
	if len(occurrences) == 0 && len(fields) == 0 {
		fail("calendar: no occurrences")
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Key: key, Fields: fields}
	}

	pageURL := strings.TrimSpace(data.Get("url").String())
	if pageURL == "" {
		pageURL = raw.URL
	}

	mosque := model.Mosque{
		Key:             key,
		Name:            name,
		Label:           optString(data.Get("label")),
		Association:     optString(data.Get("association")),
		Latitude:        lat.Float(),
		Longitude:       lon.Float(),
		Timezone:        tzName,
		CountryCode:     optString(data.Get("countryCode")),
		URL:             pageURL,
		Site:            optString(data.Get("site")),
		Logo:            optString(data.Get("logo")),
		Image:           optString(data.Get("image")),
		InteriorPicture: optString(data.Get("interiorPicture")),
		ExteriorPicture: optString(data.Get("exteriorPicture")),
		StreamURL:       optString(data.Get("streamUrl")),
		Facilities: model.Facilities{
			Parking:               optBool(data.Get("parking")),
			Ablutions:             optBool(data.Get("ablutions")),
			RamadanMeal:           optBool(data.Get("ramadanMeal")),
			WomenSpace:            optBool(data.Get("womenSpace")),
			JanazaPrayer:          optBool(data.Get("janazaPrayer")),
			AidPrayer:             optBool(data.Get("aidPrayer")),
			AdultCourses:          optBool(data.Get("adultCourses")),
			ChildrenCourses:       optBool(data.Get("childrenCourses")),
			HandicapAccessibility: optBool(data.Get("handicapAccessibility")),
			PaymentWebsite:        optString(data.Get("paymentWebsite")),
			OtherInfo:             optString(data.Get("otherInfo")),
		},
	}

	return &model.Schedule{
		Mosque:      mosque,
		Year:        year,
		ScrapedAt:   raw.ScrapedAt,
		Occurrences: occurrences,
	}, nil
}

// flattenCalendar turns the payload's twelve month tables into dated
// occurrences, months in order and days ascending, so the result's dates are
// monotonically non-decreasing. Day numbers invalid for their month are
// skipped the way the source pads short months. A duplicate (date, prayer)
// pair is a validation error: silently picking one would hide an upstream
// extraction defect.
func flattenCalendar(cal gjson.Result, year int, fail func(string, ...interface{})) []model.Occurrence {
	if !cal.Exists() || !cal.IsArray() {
		fail("calendar: missing or not an array")
		return nil
	}
	months := cal.Array()
	if len(months) != 12 {
		fail("calendar: expected 12 months, got %d", len(months))
		return nil
	}

	prayers := model.Prayers()
	var occs []model.Occurrence
	seen := make(map[string]string)

	for i, month := range months {
		m := i + 1
		if !month.IsObject() {
			fail("calendar[%d]: not an object", i)
			continue
		}

		type dayTimes struct {
			day   int
			times gjson.Result
		}
		var days []dayTimes
		month.ForEach(func(k, v gjson.Result) bool {
			day, err := strconv.Atoi(k.String())
			if err != nil || day < 1 {
				fail("calendar[%d]: bad day key %q", i, k.String())
				return true
			}
			days = append(days, dayTimes{day: day, times: v})
			return true
		})
		sort.SliceStable(days, func(a, b int) bool { return days[a].day < days[b].day })

		for _, d := range days {
			if d.day > daysInMonth(year, m) {
				continue
			}
			times := d.times.Array()
			if len(times) != len(prayers) {
				fail("%04d-%02d-%02d: expected %d times, got %d", year, m, d.day, len(prayers), len(times))
				continue
			}
			date := fmt.Sprintf("%04d-%02d-%02d", year, m, d.day)
			for j, p := range prayers {
				ts := strings.TrimSpace(times[j].String())
				if !validTime(ts) {
					fail("%s %s: bad time %q", date, p, ts)
					continue
				}
				dk := date + "|" + string(p)
				if prev, dup := seen[dk]; dup {
					if prev != ts {
						fail("%s %s: duplicate entry with conflicting times %q and %q", date, p, prev, ts)
					} else {
						fail("%s %s: duplicate entry", date, p)
					}
					continue
				}
				seen[dk] = ts
				occs = append(occs, model.Occurrence{Date: date, Prayer: p, Time: ts})
			}
		}
	}
	return occs
}

func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validTime(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func optString(r gjson.Result) *string {
	if !r.Exists() {
		return nil
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return nil
	}
	return &s
}

func optBool(r gjson.Result) *bool {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	b := r.Bool()
	return &b
}
