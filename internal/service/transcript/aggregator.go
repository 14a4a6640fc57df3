package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/improv-battle/backend/internal/model/transcript"
)

// Aggregator merges finalized utterances from the host and the participant into
// one append-only conversation. Entries keep the order in which their final
// events arrived; no timestamp reconciliation happens across the two sources.
//
// An Aggregator is not safe for concurrent use. It is owned by a single event
// loop which serializes both handlers.
type Aggregator struct {
	entries []transcript.Entry
	newID   func(transcript.Speaker) string
	now     func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithIDFunc replaces the entry identifier source.
func WithIDFunc(fn func(transcript.Speaker) string) Option {
	return func(a *Aggregator) { a.newID = fn }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator returns an empty transcript.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		entries: make([]transcript.Entry, 0, 16),
		newID: func(s transcript.Speaker) string {
			return string(s) + "-" + uuid.NewString()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnHostUtteranceFinal records a finalized host utterance.
func (a *Aggregator) OnHostUtteranceFinal(text string) (transcript.Entry, bool) {
	return a.append(transcript.SpeakerHost, text)
}

// OnParticipantUtteranceFinal records a finalized utterance from the human
// player. Callers must already have filtered out anything attributed to the host.
func (a *Aggregator) OnParticipantUtteranceFinal(text string) (transcript.Entry, bool) {
	return a.append(transcript.SpeakerParticipant, text)
}

// append adds an entry unless the text is blank or repeats the last entry of
// the same speaker. Only the last entry is compared.
func (a *Aggregator) append(speaker transcript.Speaker, text string) (transcript.Entry, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return transcript.Entry{}, false
	}

	if n := len(a.entries); n > 0 {
		last := a.entries[n-1]
		if last.Speaker == speaker && last.Text == text {
			return transcript.Entry{}, false
		}
	}

	entry := transcript.Entry{
		ID:        a.newID(speaker),
		Speaker:   speaker,
		Text:      text,
		Timestamp: a.now(),
	}
	a.entries = append(a.entries, entry)
	return entry, true
}

// Entries returns a copy of the transcript in arrival order.
func (a *Aggregator) Entries() []transcript.Entry {
	copied := make([]transcript.Entry, len(a.entries))
	copy(copied, a.entries)
	return copied
}

func (a *Aggregator) Len() int { return len(a.entries) }

// Reset drops every entry.
func (a *Aggregator) Reset() {
	a.entries = a.entries[:0:0]
}
