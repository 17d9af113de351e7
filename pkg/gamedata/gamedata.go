// Package gamedata holds the fixed lookup tables the sim exposes only as
// raw codes: car classes, weather conditions, grip levels, and track
// display names.
package gamedata

import "fmt"

// CarClass is the numeric competition class code used by leaderboard
// configurations.
type CarClass int

// Known competition classes.
const (
	ClassGT3 CarClass = iota
	ClassGTE
	ClassLMP3
	ClassLMP2
	ClassLMP2ELMS
	ClassHyper
)

// carClassCodes maps the class string reported in standings to its code.
var carClassCodes = map[string]CarClass{
	"GT3":       ClassGT3,
	"GTE":       ClassGTE,
	"LMP3":      ClassLMP3,
	"LMP2":      ClassLMP2,
	"LMP2_ELMS": ClassLMP2ELMS,
	"Hyper":     ClassHyper,
}

// carClassNames is the inverse of carClassCodes.
var carClassNames = map[CarClass]string{
	ClassGT3:      "GT3",
	ClassGTE:      "GTE",
	ClassLMP3:     "LMP3",
	ClassLMP2:     "LMP2",
	ClassLMP2ELMS: "LMP2_ELMS",
	ClassHyper:    "Hyper",
}

// ClassCode resolves a reported class string to its code.
func ClassCode(name string) (CarClass, bool) {
	c, ok := carClassCodes[name]

	return c, ok
}

// ClassName returns the display name for a class code, or "?" if unknown.
func (c CarClass) String() string {
	if name, ok := carClassNames[c]; ok {
		return name
	}

	return "?"
}

// WeatherCondition is the sky condition code reported by the sim.
type WeatherCondition int

var weatherConditionNames = map[WeatherCondition]string{
	0:  "Clear",
	1:  "Light Clouds",
	2:  "Partially Cloudy",
	3:  "Mostly Cloudy",
	4:  "Overcast",
	5:  "Cloudy & Drizzle",
	6:  "Cloudy & Light Rain",
	7:  "Overcast & Light Rain",
	8:  "Overcast & Rain",
	9:  "Overcast & Heavy Rain",
	10: "Overcast & Storm",
}

// String returns the display name for a condition code.
func (w WeatherCondition) String() string {
	if name, ok := weatherConditionNames[w]; ok {
		return name
	}

	return fmt.Sprintf("Unknown (%d)", int(w))
}

// GripLevel is the simulated track surface condition code.
type GripLevel int

var gripLevelNames = map[GripLevel]string{
	0: "Green",
	1: "Naturally Progressing",
	2: "Heavy Grip",
	3: "Low Grip",
	4: "Medium Grip",
	5: "Saturated Grip",
}

// String returns the display name for a grip level code.
func (g GripLevel) String() string {
	if name, ok := gripLevelNames[g]; ok {
		return name
	}

	return fmt.Sprintf("%d", int(g))
}

// trackNames maps internal track identifiers to display names.
var trackNames = map[string]string{
	"PORTIMAOWEC":        "Portimão",
	"IMOLAWEC":           "Imola",
	"MONZAWEC":           "Monza",
	"MONZAWEC_GRANDE":    "Monza Curva Grande",
	"INTERLAGOSWEC":      "Interlagos",
	"BAHRAINWEC":         "Bahrain",
	"BAHRAINWEC_ENDCE":   "Bahrain Endurance",
	"BAHRAINWEC_OUTER":   "Bahrain Outer",
	"BAHRAINWEC_PADDOCK": "Bahrain Paddock",
	"SPAWEC":             "Spa-Francorchamps",
	"SPAWEC_ENDCE":       "Spa Endurance",
	"LEMANSWEC":          "Le Mans",
	"LEMANSWEC_MULSANNE": "Le Mans Mulsanne",
	"COTAWEC_NATIONAL":   "Circuit of the Americas - National",
	"COTAWEC":            "Circuit of the Americas",
	"FUJIWEC":            "Fuji Speedway",
	"FUJIWEC_CL":         "Fuji Classic",
	"QATARWEC_SHORT":     "Lusail Short",
	"QATARWEC":           "Lusail Circuit",
	"PAULRICARDELMS":     "Paul Ricard",
	"SEBRINGWEC":         "Sebring International Raceway",
	"SEBRINGWEC_SCHOOL":  "Sebring School Circuit",
	"SILVERSTONEELMS":    "Silverstone",
}

// TrackName returns the display name for a track identifier, falling
// back to the identifier itself.
func TrackName(id string) string {
	if name, ok := trackNames[id]; ok {
		return name
	}

	return id
}
