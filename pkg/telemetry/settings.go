package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/simracing-tools/laptrack/pkg/gamedata"
)

// The sim's settings API is delta based: a POST carries the signed step
// to apply, and the response echoes the value that resulted. Each write
// here computes the delta from the current value and verifies the echo.

// setSessionSetting steps a session setting from its current value to
// target and verifies the sim accepted it.
func (c *client) setSessionSetting(ctx context.Context, name string, current, target int) error {
	if current == target {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"sessionSetting": name,
		"value":          target - current,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var result settingValue
	if err := c.post(ctx, "rest/sessions/settings", "application/json", body, &result); err != nil {
		return fmt.Errorf("applying %s: %w", name, err)
	}

	if int(result.CurrentValue) != target {
		return fmt.Errorf("applying %s: sim reports %d, wanted %d", name, int(result.CurrentValue), target)
	}

	return nil
}

// setWeatherSetting steps one forecast node setting to target.
func (c *client) setWeatherSetting(ctx context.Context, node, setting string, current, target int) error {
	if current == target {
		return nil
	}

	endpoint := fmt.Sprintf("rest/sessions/weather/PRACTICE/%s/%s", node, setting)
	body := []byte(strconv.Itoa(target - current))

	var result settingValue
	if err := c.post(ctx, endpoint, "text/plain", body, &result); err != nil {
		return fmt.Errorf("applying %s on %s: %w", setting, node, err)
	}

	if int(result.CurrentValue) != target {
		return fmt.Errorf("applying %s on %s: sim reports %d, wanted %d",
			setting, node, int(result.CurrentValue), target)
	}

	return nil
}

// ApplySessionSettings reconfigures the sim for a practice-only session
// with the required weather, grip, and starting time. Settings are
// applied in dependency order: the practice slot must exist before its
// sub-settings can be written.
func (c *client) ApplySessionSettings(ctx context.Context, required gamedata.RequiredWeather, timeOfDay int) error {
	settings, err := c.getSessionSettings(ctx)
	if err != nil {
		return fmt.Errorf("reading session settings: %w", err)
	}

	current := func(name string) int {
		return int(settings[name].CurrentValue)
	}

	sessionTargets := []struct {
		name   string
		target int
	}{
		{"SESSSET_pract1", 1},
		{"SESSSET_num_qual_sessions", 0},
		{"SESSSET_num_race_sessions", 0},
		{"SESSSET_realroad_timescale_practice", 0},
		{"SESSSET_practice1_starting_time", timeOfDay},
		{gripSetting, required.GripLevel},
	}

	for _, s := range sessionTargets {
		if err := c.setSessionSetting(ctx, s.name, current(s.name), s.target); err != nil {
			return err
		}
	}

	slots, err := c.GetWeatherSlots(ctx)
	if err != nil {
		return fmt.Errorf("reading forecast: %w", err)
	}

	// GetWeatherSlots returns nodes back to front.
	for i, node := range weatherNodeOrder {
		slotIdx := len(slots) - 1 - i
		if slotIdx < 0 || slotIdx >= len(slots) {
			continue
		}

		slot := slots[slotIdx]

		nodeTargets := []struct {
			setting string
			current int
			target  int
		}{
			{"WNV_SKY", slot.Condition, required.Condition},
			{"WNV_RAIN_CHANCE", int(slot.Rain), int(required.Rain)},
			{"WNV_TEMPERATURE", int(slot.Temperature), int(required.Temperature)},
		}

		for _, t := range nodeTargets {
			if err := c.setWeatherSetting(ctx, node, t.setting, t.current, t.target); err != nil {
				return err
			}
		}
	}

	c.log.WithField("track_grip", required.GripLevel).Info("Session settings applied")

	return nil
}
