package transcript

import "time"

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerHost        Speaker = "host"
	SpeakerParticipant Speaker = "participant"
)

// Entry is one finalized utterance in the session transcript.
type Entry struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
