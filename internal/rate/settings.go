package rate

import "github.com/Checker-Finance/yield-aggregator/pkg/config"

// FromSettings maps configured pacing onto a limiter Config.
func FromSettings(rl config.RateLimit) Config {
	return Config{
		PerSecond:        rl.PerSecond,
		PerMinute:        rl.PerMinute,
		PerHour:          rl.PerHour,
		JitterPercentage: rl.Jitter,
	}
}

// NewManagerFromSettings builds a Manager whose defaults come from def and
// whose per-source overrides come from perSource.
func NewManagerFromSettings(def config.RateLimit, perSource map[string]config.RateLimit) (*Manager, error) {
	overrides := make(map[string]Config, len(perSource))
	for name, rl := range perSource {
		cfg := FromSettings(rl)
		cfg.Name = name
		overrides[name] = cfg
	}
	return NewManager(FromSettings(def), overrides)
}
