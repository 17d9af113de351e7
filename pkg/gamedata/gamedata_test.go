package gamedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassCode(t *testing.T) {
	code, ok := ClassCode("Hyper")
	require.True(t, ok)
	assert.Equal(t, ClassHyper, code)

	_, ok = ClassCode("GT4")
	assert.False(t, ok)

	assert.Equal(t, "LMP2_ELMS", ClassLMP2ELMS.String())
	assert.Equal(t, "?", CarClass(99).String())
}

func TestWeatherConditionString(t *testing.T) {
	assert.Equal(t, "Clear", WeatherCondition(0).String())
	assert.Equal(t, "Overcast & Storm", WeatherCondition(10).String())
	assert.Equal(t, "Unknown (11)", WeatherCondition(11).String())
}

func TestGripLevelString(t *testing.T) {
	assert.Equal(t, "Naturally Progressing", GripLevel(1).String())
	assert.Equal(t, "7", GripLevel(7).String())
}

func TestTrackName(t *testing.T) {
	assert.Equal(t, "Monza", TrackName("MONZAWEC"))
	assert.Equal(t, "UNKNOWN_TRACK", TrackName("UNKNOWN_TRACK"))
}

func TestWeatherMatches(t *testing.T) {
	required := RequiredWeather{
		Condition:   2,
		Temperature: 22.0,
		Rain:        10.0,
		GripLevel:   3,
	}

	tests := []struct {
		name      string
		slots     []WeatherSlot
		wantMatch bool
		wantSlot  int
	}{
		{
			name: "exact match",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 22.0, Rain: 10.0},
				{Condition: 2, Temperature: 22.0, Rain: 10.0},
			},
			wantMatch: true,
			wantSlot:  -1,
		},
		{
			name: "within tolerances",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 22.9, Rain: 14.5},
			},
			wantMatch: true,
			wantSlot:  -1,
		},
		{
			name: "exactly on tolerance boundary",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 23.0, Rain: 15.0},
			},
			wantMatch: true,
			wantSlot:  -1,
		},
		{
			name: "condition mismatch",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 22.0, Rain: 10.0},
				{Condition: 4, Temperature: 22.0, Rain: 10.0},
			},
			wantMatch: false,
			wantSlot:  1,
		},
		{
			name: "temperature out of tolerance",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 23.5, Rain: 10.0},
			},
			wantMatch: false,
			wantSlot:  0,
		},
		{
			name: "rain out of tolerance",
			slots: []WeatherSlot{
				{Condition: 2, Temperature: 22.0, Rain: 16.0},
			},
			wantMatch: false,
			wantSlot:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, slot := WeatherMatches(tt.slots, required)
			assert.Equal(t, tt.wantMatch, match)
			assert.Equal(t, tt.wantSlot, slot)
		})
	}
}

func TestCarRegistry(t *testing.T) {
	reg := NewCarRegistry(map[string]CarModel{
		"deadbeefcafe": {Name: "Ferrari 499P", Class: "Hyper"},
	})

	model, err := reg.Get("deadbeefcafe")
	require.NoError(t, err)
	assert.Equal(t, "Ferrari 499P", model.Name)

	_, err = reg.Get("0123456789ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "01234567...")

	reg.Register("feedface", CarModel{Name: "Porsche 963", Class: "Hyper"})
	assert.Equal(t, 2, reg.Len())
}

func TestShortSig(t *testing.T) {
	assert.Equal(t, "abcd", ShortSig("abcd"))
	assert.Equal(t, "abcdefgh...", ShortSig("abcdefghij"))
}
