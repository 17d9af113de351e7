package gamedata

// Tolerances applied when comparing observed conditions against a
// leaderboard's required conditions.
const (
	TempTolerance = 1.0
	RainTolerance = 5.0
)

// WeatherSlot is one observed forecast slot, in session order.
type WeatherSlot struct {
	Condition   int     `json:"condition"`
	Temperature float64 `json:"temperature"`
	Rain        float64 `json:"rain"`
}

// RequiredWeather is a leaderboard's configured session conditions.
type RequiredWeather struct {
	Condition   int     `json:"condition"`
	Temperature float64 `json:"temperature"`
	Rain        float64 `json:"rain"`
	GripLevel   int     `json:"grip_level"`
}

// WeatherMatches reports whether every observed slot satisfies the
// required conditions. The condition code must match exactly; temperature
// and rain chance may differ by at most their tolerances. On mismatch the
// index of the first offending slot is returned.
//
// An empty slot list matches vacuously; callers must treat it as a read
// error before calling.
func WeatherMatches(slots []WeatherSlot, required RequiredWeather) (bool, int) {
	for i, slot := range slots {
		if slot.Condition != required.Condition {
			return false, i
		}

		if abs(slot.Temperature-required.Temperature) > TempTolerance {
			return false, i
		}

		if abs(slot.Rain-required.Rain) > RainTolerance {
			return false, i
		}
	}

	return true, -1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
