package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EventID derives the identifier used to reconcile an occurrence against the
// remote calendar. It is a pure function of (mosque key, date, prayer), so
// regenerating a schedule never changes an identifier. The lowercase hex
// alphabet is a subset of what Google Calendar accepts for event ids, so the
// same string is used verbatim on the remote side.
func EventID(key, date string, prayer Prayer) string {
	data := fmt.Sprintf("%s|%s|%s", key, date, prayer)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Event is one calendar entry derived from a single prayer occurrence plus
// the active template. Identical inputs always produce identical events.
type Event struct {
	ID          string    `json:"id"`
	MosqueKey   string    `json:"mosqueKey"`
	Date        string    `json:"date"`
	Prayer      Prayer    `json:"prayer"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	URL         string    `json:"url,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone"`
	Reminders   []int     `json:"reminders"` // minutes before start
}
