package timeutil

import (
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30), the default business
// timezone of the fleet operators.
var IST *time.Location

// Local is the business timezone used for request-number years and documents.
var Local *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback: create fixed zone if Asia/Kolkata not available
		IST = time.FixedZone("IST", 5*60*60+30*60)
	}
	Local = IST
}

// SetLocation switches the business timezone. An empty name keeps the
// current one.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	Local = loc
	return nil
}

// Now returns the current time in the business timezone.
func Now() time.Time {
	return time.Now().In(Local)
}

// In converts any time to the business timezone.
func In(t time.Time) time.Time {
	return t.In(Local)
}

// Year is the calendar year of t in the business timezone.
func Year(t time.Time) int {
	return t.In(Local).Year()
}

// Format formats t in the business timezone using the given layout
func Format(t time.Time, layout string) string {
	return t.In(Local).Format(layout)
}

// Common layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	DisplayLayout  = "02 Jan 2006, 03:04 PM"
)
