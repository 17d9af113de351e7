package store

import (
	"time"

	"github.com/simracing-tools/laptrack/pkg/gamedata"
)

// Leaderboard is a track's leaderboard definition.
type Leaderboard struct {
	ID             uint                     `gorm:"primaryKey" json:"-"`
	Track          string                   `gorm:"uniqueIndex;not null" json:"track"`
	DiscordChannel int64                    `gorm:"not null" json:"discord_channel"`
	Weather        gamedata.RequiredWeather `gorm:"serializer:json;not null" json:"weather"`
	Classes        []int                    `gorm:"serializer:json;not null" json:"classes"`
	ShowTechnical  bool                     `json:"show_technical"`
	TimeOfDay      int                      `json:"time_of_day"`
	FixedSetup     bool                     `json:"fixed_setup"`
	CreatedAt      time.Time                `json:"-"`
	UpdatedAt      time.Time                `json:"-"`
}

// LapTime is a driver's best recorded time on a track. At most one row
// exists per (track, driver).
type LapTime struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Track      string    `gorm:"uniqueIndex:idx_lap_track_driver;not null" json:"track"`
	DriverID   string    `gorm:"uniqueIndex:idx_lap_track_driver;not null" json:"-"`
	DriverName string    `gorm:"not null" json:"driver_name"`
	Car        string    `gorm:"not null" json:"car"`
	CarClass   string    `json:"class"`
	LapTime    float64   `json:"lap"`
	Sector1    float64   `json:"sector1"`
	Sector2    float64   `json:"sector2"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuthSession maps an opaque bearer token to a driver. Created at
// OAuth completion, destroyed on logout.
type AuthSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Token      string    `gorm:"uniqueIndex;not null" json:"-"`
	DriverID   string    `gorm:"not null" json:"driver_id"`
	DriverName string    `gorm:"not null" json:"driver_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// BlacklistEntry bars a driver from submitting times.
type BlacklistEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DriverID  string    `gorm:"uniqueIndex;not null" json:"driver_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
