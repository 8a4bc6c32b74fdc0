// Package utils provides shared utility functions.
package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// LoadLocation resolves a timezone name, falling back to IndiaLocation for "" or unknown names.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return IndiaLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return IndiaLocation
	}
	return loc
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
