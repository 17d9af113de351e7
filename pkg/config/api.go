package config

import "fmt"

const (
	// DefaultListen is the default API server listen address.
	DefaultListen = ":8000"

	// DefaultSQLitePath is the default SQLite database location.
	DefaultSQLitePath = "./laptrack.db"
)

// Default rate limit budgets, requests per window.
const (
	DefaultGeneralMaxRequests = 60
	DefaultSubmitMaxRequests  = 10
	DefaultAuthMaxRequests    = 10
	DefaultWindowSeconds      = 60
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server       APIServerConfig      `yaml:"server"`
	Auth         DiscordAuthConfig    `yaml:"auth"`
	Database     APIDatabaseConfig    `yaml:"database"`
	Leaderboards []LeaderboardSeed    `yaml:"leaderboards,omitempty"`
	Cars         map[string]CarConfig `yaml:"cars,omitempty"`
}

// CarConfig describes a car model keyed by its loadout signature.
type CarConfig struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures the per-identity sliding window limiters.
type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled"`
	General RateLimitBudget `yaml:"general,omitempty"`
	Submit  RateLimitBudget `yaml:"submit,omitempty"`
	Auth    RateLimitBudget `yaml:"auth,omitempty"`
}

// RateLimitBudget defines how many requests an identity may make within
// a trailing window.
type RateLimitBudget struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// DiscordAuthConfig configures Discord OAuth authentication.
type DiscordAuthConfig struct {
	ClientID            string `yaml:"client_id"`
	ClientSecret        string `yaml:"client_secret"`
	CallbackURL         string `yaml:"callback_url"`
	HomeGuildID         string `yaml:"home_guild_id"`
	ApplicationCallback string `yaml:"application_callback"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// LeaderboardSeed defines a leaderboard configuration seeded at startup.
type LeaderboardSeed struct {
	Track          string      `yaml:"track"`
	DiscordChannel int64       `yaml:"discord_channel"`
	Weather        WeatherSeed `yaml:"weather"`
	Classes        []int       `yaml:"classes"`
	ShowTechnical  bool        `yaml:"show_technical"`
	TimeOfDay      int         `yaml:"time_of_day"`
	FixedSetup     bool        `yaml:"fixed_setup"`
}

// WeatherSeed defines the required session conditions for a seeded
// leaderboard.
type WeatherSeed struct {
	Condition   int     `yaml:"condition"`
	Temperature float64 `yaml:"temperature"`
	Rain        float64 `yaml:"rain"`
	GripLevel   int     `yaml:"grip_level"`
}

// applyDefaults sets default values for unspecified API options.
func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	applyBudgetDefaults(&c.Server.RateLimit.General, DefaultGeneralMaxRequests)
	applyBudgetDefaults(&c.Server.RateLimit.Submit, DefaultSubmitMaxRequests)
	applyBudgetDefaults(&c.Server.RateLimit.Auth, DefaultAuthMaxRequests)

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}
}

func applyBudgetDefaults(b *RateLimitBudget, maxRequests int) {
	if b.MaxRequests == 0 {
		b.MaxRequests = maxRequests
	}

	if b.WindowSeconds == 0 {
		b.WindowSeconds = DefaultWindowSeconds
	}
}

// ValidateAPI checks the API section for errors.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api section is required")
	}

	switch c.API.Database.Driver {
	case "sqlite":
		if c.API.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		pg := c.API.Database.Postgres
		if pg.Host == "" || pg.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.API.Database.Driver)
	}

	seen := make(map[string]struct{}, len(c.API.Leaderboards))

	for i, lb := range c.API.Leaderboards {
		if lb.Track == "" {
			return fmt.Errorf("leaderboard %d: track is required", i)
		}

		if _, exists := seen[lb.Track]; exists {
			return fmt.Errorf("leaderboard %d: duplicate track %q", i, lb.Track)
		}

		seen[lb.Track] = struct{}{}

		if len(lb.Classes) == 0 {
			return fmt.Errorf("leaderboard %q: at least one class is required", lb.Track)
		}
	}

	return nil
}
