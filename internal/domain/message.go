package domain

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Inbox returns the channel key on which this role receives deliveries.
func (r Role) Inbox() string {
	if r == RoleDoctor {
		return KeyDoctorInbox
	}
	return KeyPatientInbox
}

// ContentKind tags the Content union.
type ContentKind string

const (
	ContentAudio ContentKind = "audio"
	ContentText  ContentKind = "text"
)

// Content is a tagged union: either an opaque audio reference or literal text.
type Content struct {
	Kind     ContentKind `json:"kind"`
	AudioRef string      `json:"audioRef,omitempty"`
	Text     string      `json:"text,omitempty"`
}

// AudioContent wraps an opaque audio reference.
func AudioContent(ref string) Content {
	return Content{Kind: ContentAudio, AudioRef: ref}
}

// TextContent wraps a typed response.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// Identity returns the stable identifying string for this content:
// the audio reference for audio, the text itself for text. It seeds the
// waveform and backs duplicate detection.
func (c Content) Identity() string {
	if c.Kind == ContentAudio {
		return c.AudioRef
	}
	return c.Text
}

// IsZero reports whether the union carries no payload at all.
func (c Content) IsZero() bool {
	return c.AudioRef == "" && c.Text == ""
}

// Validate checks that the tag matches the populated field.
func (c Content) Validate() error {
	switch c.Kind {
	case ContentAudio:
		if c.AudioRef == "" {
			return &ValidationError{Field: "audioRef", Reason: "audio content requires an audio reference"}
		}
	case ContentText:
		if c.Text == "" {
			return &ValidationError{Field: "text", Reason: "text content requires a non-empty value"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: "unknown content kind"}
	}
	return nil
}

// ConversationEntry is one message in the append-only conversation log.
// Entries are never mutated or removed once published.
type ConversationEntry struct {
	ID        string    `json:"id"`
	Sender    Role      `json:"sender"`
	Content   Content   `json:"content"`
	Waveform  []float64 `json:"waveform"`
	Timestamp int64     `json:"timestamp"` // milliseconds since epoch, non-decreasing per context
}

// Matches reports whether two entries denote the same message: same ID, or
// the same (sender, timestamp, content identity) tuple.
func (e ConversationEntry) Matches(other ConversationEntry) bool {
	if e.ID != "" && e.ID == other.ID {
		return true
	}
	return e.Sender == other.Sender &&
		e.Timestamp == other.Timestamp &&
		e.Content.Identity() == other.Content.Identity()
}

// InsightReport is the result of an enrichment pass over a patient message.
// It is delivered on the doctor inbox and superseded by the next report.
type InsightReport struct {
	Insights    string  `json:"insights"`
	Subject     Content `json:"subject"`
	PlayableRef string  `json:"playableRef,omitempty"` // audio the doctor can play back
}

// SilentAudioRef is a short silent WAV used as the playable reference when a
// patient responds with text only.
const SilentAudioRef = "data:audio/wav;base64,UklGRiQAAABXQVZFZm10IBAAAAABAAEARKwAAIhYAQACABAAZGF0YQAAAAA="
