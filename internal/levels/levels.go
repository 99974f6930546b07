// Package levels maps accumulated reputation points onto named levels with
// a progress percentage. The bands come from the [levels] config section and
// are validated there; the calculator itself is pure.
package levels

import (
	"errors"

	"github.com/hazyhaar/poinet/internal/config"
)

var ErrNegativeReputation = errors.New("reputation must not be negative")

// Level is the computed standing for a reputation value.
type Level struct {
	Level              string  `json:"level"`
	MinReputation      int     `json:"min_reputation"`
	MaxReputation      int     `json:"max_reputation"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

type Calculator struct {
	bands []config.LevelBand
}

func New(cfg config.LevelsConfig) *Calculator {
	return &Calculator{bands: cfg.Bands}
}

// LevelOf returns the band a reputation value falls into. Progress is the
// position within the band clamped to [0, 100]; the open-ended top band
// always reports 100 rather than dividing by an undefined range.
func (c *Calculator) LevelOf(reputation int) (*Level, error) {
	if reputation < 0 {
		return nil, ErrNegativeReputation
	}

	for i, b := range c.bands {
		top := i == len(c.bands)-1
		if !top && reputation > b.Max {
			continue
		}

		lvl := &Level{
			Level:         b.Name,
			MinReputation: b.Min,
			MaxReputation: b.Max,
		}
		if top {
			// Report a nominal ceiling (double the entry threshold) so
			// clients can render a bar, but progress saturates.
			width := b.Min
			if width <= 0 {
				width = 100
			}
			lvl.MaxReputation = b.Min + width - 1
			lvl.ProgressPercentage = 100
			return lvl, nil
		}

		span := b.Max - b.Min + 1
		lvl.ProgressPercentage = clamp(float64(reputation-b.Min) / float64(span) * 100)
		return lvl, nil
	}

	// Unreachable with validated bands.
	return nil, errors.New("no level band matches reputation")
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
