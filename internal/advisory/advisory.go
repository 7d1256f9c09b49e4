// Package advisory maps AQI values to severity bands with health guidance.
package advisory

import "math"

// Level orders the six AQI bands from least to most severe.
type Level int

const (
	Good Level = iota
	Moderate
	UnhealthySensitive
	Unhealthy
	VeryUnhealthy
	Hazardous
)

// Tone is the display style of a band.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
)

// Band describes one AQI category.
type Band struct {
	Level          Level    `json:"level"`
	Key            string   `json:"key"`
	Label          string   `json:"label"`
	Upper          float64  `json:"-"` // inclusive; +Inf for the last band
	Interpretation string   `json:"interpretation"`
	Actions        []string `json:"actions"`
	Tone           Tone     `json:"tone"`
}

// Bands are ordered by Upper. A value belongs to the first band whose
// Upper bound it does not exceed.
var Bands = []Band{
	{
		Level:          Good,
		Key:            "good",
		Label:          "Good",
		Upper:          50,
		Interpretation: "Air quality is satisfactory, and air pollution poses little or no risk.",
		Actions: []string{
			"Ideal conditions for outdoor activities",
			"No special precautions needed",
		},
		Tone: ToneSuccess,
	},
	{
		Level:          Moderate,
		Key:            "moderate",
		Label:          "Moderate",
		Upper:          100,
		Interpretation: "Air quality is acceptable; however, some pollutants may be of concern for very sensitive individuals.",
		Actions: []string{
			"Unusually sensitive people should consider reducing prolonged outdoor exertion",
			"Open windows to ventilate indoor spaces",
		},
		Tone: ToneInfo,
	},
	{
		Level:          UnhealthySensitive,
		Key:            "unhealthy_sensitive",
		Label:          "Unhealthy for Sensitive Groups",
		Upper:          150,
		Interpretation: "Members of sensitive groups may experience health effects, but the general public is less likely to be affected.",
		Actions: []string{
			"People with respiratory or heart conditions should limit outdoor exertion",
			"Close windows to avoid outdoor air pollution",
		},
		Tone: ToneWarning,
	},
	{
		Level:          Unhealthy,
		Key:            "unhealthy",
		Label:          "Unhealthy",
		Upper:          200,
		Interpretation: "Everyone may begin to experience health effects; members of sensitive groups may experience more serious health effects.",
		Actions: []string{
			"Everyone should reduce outdoor activities",
			"Wear masks when outdoors",
			"Use air purifiers indoors",
		},
		Tone: ToneError,
	},
	{
		Level:          VeryUnhealthy,
		Key:            "very_unhealthy",
		Label:          "Very Unhealthy",
		Upper:          300,
		Interpretation: "Health alert: everyone may experience more serious health effects.",
		Actions: []string{
			"Avoid outdoor activities",
			"Wear N95 masks if outdoors",
			"Keep all windows closed",
			"Use air purifiers",
		},
		Tone: ToneError,
	},
	{
		Level:          Hazardous,
		Key:            "hazardous",
		Label:          "Hazardous",
		Upper:          math.Inf(1),
		Interpretation: "Health warnings of emergency conditions. The entire population is more likely to be affected.",
		Actions: []string{
			"Stay indoors",
			"Keep all windows and doors closed",
			"Use air purifiers",
			"Seek medical help if experiencing adverse symptoms",
		},
		Tone: ToneError,
	},
}

// Classify returns the band for aqi. Boundaries are inclusive, so 50 is
// Good and 50.01 is Moderate. NaN is classified as Hazardous since it
// exceeds no bound; callers should reject non-finite values first.
func Classify(aqi float64) Band {
	for _, b := range Bands {
		if aqi <= b.Upper {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// String returns the band label.
func (l Level) String() string {
	if l < Good || l > Hazardous {
		return "Unknown"
	}
	return Bands[l].Label
}
