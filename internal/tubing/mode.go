package tubing

import (
	"fmt"
	"strings"
)

// Mode selects how the central cluster boundary is determined.
type Mode int

const (
	// SpreadDependent grows the central cluster until its dm variance reaches
	// a fraction of the total dm variance.
	SpreadDependent Mode = iota
	// SeasonDependent is reserved. It always fails with ErrNotImplemented.
	SeasonDependent
)

func (m Mode) String() string {
	switch m {
	case SpreadDependent:
		return "spread_dependent"
	case SeasonDependent:
		return "season_dependent"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string onto a Mode. An empty string selects
// SpreadDependent.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "spread_dependent":
		return SpreadDependent, nil
	case "season_dependent":
		return SeasonDependent, nil
	default:
		return 0, fmt.Errorf("unknown tubing mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case SpreadDependent, SeasonDependent:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("unknown tubing mode %d", int(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
