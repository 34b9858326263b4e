package monitor

import (
	"fmt"
	"strings"
)

// Level is a memory pressure level
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MarshalText encodes the level by name
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLevel parses a level name
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return LevelNormal, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "critical":
		return LevelCritical, nil
	case "emergency":
		return LevelEmergency, nil
	default:
		return LevelNormal, fmt.Errorf("unknown pressure level %q", s)
	}
}
