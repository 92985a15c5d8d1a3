package vad

import "fmt"

// Mode is the sensitivity level of a detector. Higher modes reject more
// borderline frames as silence.
type Mode int

const (
	// ModeNormal favours catching soft speech.
	ModeNormal Mode = iota

	// ModeAggressive raises the bar for speech.
	ModeAggressive

	// ModeVeryAggressive only reports clearly voiced frames.
	ModeVeryAggressive
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m >= ModeNormal && m <= ModeVeryAggressive
}

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeAggressive:
		return "aggressive"
	case ModeVeryAggressive:
		return "very_aggressive"
	default:
		return "unknown"
	}
}

// ParseMode converts a configuration name into a Mode. The empty string maps
// to [ModeNormal].
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return ModeNormal, nil
	case "aggressive":
		return ModeAggressive, nil
	case "very_aggressive":
		return ModeVeryAggressive, nil
	}
	return 0, fmt.Errorf("vad: unknown mode %q; valid values: normal, aggressive, very_aggressive", s)
}
