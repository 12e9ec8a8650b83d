package model

import (
	"strings"
	"time"
)

// Prayer identifies one of the six daily times a mosque publishes.
type Prayer string

const (
	PrayerFajr    Prayer = "fajr"
	PrayerShuruq  Prayer = "shuruq"
	PrayerDhuhr   Prayer = "dhuhr"
	PrayerAsr     Prayer = "asr"
	PrayerMaghrib Prayer = "maghrib"
	PrayerIsha    Prayer = "isha"
)

// Prayers returns all prayers in their daily order. Source pages publish
// times as six-element lists in exactly this order.
func Prayers() []Prayer {
	return []Prayer{PrayerFajr, PrayerShuruq, PrayerDhuhr, PrayerAsr, PrayerMaghrib, PrayerIsha}
}

// ParsePrayer maps a raw name to its Prayer value.
func ParsePrayer(s string) (Prayer, bool) {
	switch Prayer(strings.ToLower(strings.TrimSpace(s))) {
	case PrayerFajr:
		return PrayerFajr, true
	case PrayerShuruq:
		return PrayerShuruq, true
	case PrayerDhuhr:
		return PrayerDhuhr, true
	case PrayerAsr:
		return PrayerAsr, true
	case PrayerMaghrib:
		return PrayerMaghrib, true
	case PrayerIsha:
		return PrayerIsha, true
	}
	return "", false
}

// Order returns the prayer's position in the daily sequence, used to break
// ties when two prayers share a start minute.
func (p Prayer) Order() int {
	for i, q := range Prayers() {
		if p == q {
			return i
		}
	}
	return len(Prayers())
}

// Title returns the capitalized display form, e.g. "Fajr".
func (p Prayer) Title() string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Facilities describes the amenities a mosque advertises on its page.
// Every field is tri-state: nil means the page does not say.
type Facilities struct {
	Parking               *bool   `json:"parking,omitempty"`
	Ablutions             *bool   `json:"ablutions,omitempty"`
	RamadanMeal           *bool   `json:"ramadanMeal,omitempty"`
	WomenSpace            *bool   `json:"womenSpace,omitempty"`
	JanazaPrayer          *bool   `json:"janazaPrayer,omitempty"`
	AidPrayer             *bool   `json:"aidPrayer,omitempty"`
	AdultCourses          *bool   `json:"adultCourses,omitempty"`
	ChildrenCourses       *bool   `json:"childrenCourses,omitempty"`
	HandicapAccessibility *bool   `json:"handicapAccessibility,omitempty"`
	PaymentWebsite        *string `json:"paymentWebsite,omitempty"`
	OtherInfo             *string `json:"otherInfo,omitempty"`
}

// Mosque holds the identity and metadata of one configured mosque.
// JSON field names mirror the source payload so the metadata file the
// website consumes keeps the same vocabulary.
type Mosque struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	Label           *string `json:"label,omitempty"`
	Association     *string `json:"association,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Timezone        string  `json:"timezone"`
	CountryCode     *string `json:"countryCode,omitempty"`
	URL             string  `json:"url"`
	Site            *string `json:"site,omitempty"`
	Logo            *string `json:"logo,omitempty"`
	Image           *string `json:"image,omitempty"`
	InteriorPicture *string `json:"interiorPicture,omitempty"`
	ExteriorPicture *string `json:"exteriorPicture,omitempty"`
	StreamURL       *string `json:"streamUrl,omitempty"`
	Facilities
}

// KeyFromURL derives the stable mosque key from a source page URL: the last
// path segment with dashes mapped to underscores. The key joins a mosque to
// its remote calendar across runs, so the derivation must never change.
func KeyFromURL(rawURL string) string {
	trimmed := rawURL
	// Query and fragment go first: "/slug/?view=month" still names slug.
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	slug := trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		slug = trimmed[i+1:]
	}
	return strings.ReplaceAll(slug, "-", "_")
}

// Occurrence is one scheduled prayer on one calendar date.
type Occurrence struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Prayer Prayer `json:"prayer"`
	Time   string `json:"time"` // HH:MM, mosque-local wall clock
}

// Schedule is a validated snapshot of one mosque's published year.
// It is immutable once built; a new scrape produces a new Schedule.
type Schedule struct {
	Mosque      Mosque       `json:"mosque"`
	Year        int          `json:"year"`
	ScrapedAt   time.Time    `json:"scrapedAt"`
	Occurrences []Occurrence `json:"occurrences"`
}
