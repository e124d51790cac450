// Package types defines the shared types used across all pitchdrill packages.
//
// Cross-cutting data structures live here to avoid circular imports between
// the realtime channel adapters and the coaching engine; each package
// otherwise defines its own domain types.
package types

// Speaker identifies which side of the conversation produced an utterance.
type Speaker string

const (
	// SpeakerTrainee is the sales rep practising the pitch.
	SpeakerTrainee Speaker = "trainee"

	// SpeakerProspect is the simulated counterpart (homeowner, buyer, ...).
	SpeakerProspect Speaker = "prospect"
)

// IsValid reports whether s is a recognised speaker role.
func (s Speaker) IsValid() bool {
	return s == SpeakerTrainee || s == SpeakerProspect
}

// String returns the wire representation of the speaker role.
func (s Speaker) String() string {
	return string(s)
}
