// Package fusion validates and combines the two redundant temperature
// channels of a device into a single trusted value.
package fusion

import (
	"math"
)

// Source identifies which sensor produced the trusted temperature.
type Source string

const (
	SourcePrimary   Source = "PRIMARY"
	SourceSecondary Source = "SECONDARY"
)

const (
	// FaultSentinel is reported by the primary sensor when its probe has
	// failed or is disconnected.
	FaultSentinel = -127.0

	// DisagreementLimit is the maximum tolerated spread between the two
	// sensors before a reading is flagged. Fixed, not configurable.
	DisagreementLimit = 2.0

	primaryMin   = -40.0
	primaryMax   = 125.0
	secondaryMin = -40.0
	secondaryMax = 80.0
)

// Result is the outcome of fusing one reading cycle. When Trusted is false
// neither sensor produced a usable value and Temperature is undefined.
type Result struct {
	Trusted      bool
	Temperature  float64
	Source       Source
	PrimaryOK    bool
	SecondaryOK  bool
	Disagreement bool
	Humidity     *float64
}

// Fuse selects the trusted temperature from the raw sensor channels.
// The primary sensor wins whenever it is valid; the secondary is the
// fallback. Pure function, no side effects.
func Fuse(primary, secondary, humidity *float64) Result {
	res := Result{
		PrimaryOK:   primaryValid(primary),
		SecondaryOK: secondaryValid(secondary),
		Humidity:    humidity,
	}

	if res.PrimaryOK && res.SecondaryOK {
		res.Disagreement = math.Abs(*primary-*secondary) > DisagreementLimit
	}

	switch {
	case res.PrimaryOK:
		res.Trusted = true
		res.Temperature = *primary
		res.Source = SourcePrimary
	case res.SecondaryOK:
		res.Trusted = true
		res.Temperature = *secondary
		res.Source = SourceSecondary
	}

	return res
}

func primaryValid(v *float64) bool {
	if v == nil || math.IsNaN(*v) {
		return false
	}
	if *v == FaultSentinel {
		return false
	}
	return *v >= primaryMin && *v <= primaryMax
}

func secondaryValid(v *float64) bool {
	if v == nil || math.IsNaN(*v) {
		return false
	}
	return *v >= secondaryMin && *v <= secondaryMax
}
