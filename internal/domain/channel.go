package domain

import "context"

// Well-known channel keys shared by both contexts.
const (
	KeyConversation      = "conversation"
	KeyPatientInbox      = "patient-inbox"
	KeyDoctorInbox       = "doctor-inbox"
	KeyPreferredLanguage = "preferred-language"
)

// Channel is the cross-context publish/subscribe surface. A publish writes
// the serialized value to the shared store and notifies every live
// subscriber, in this context and in every other attached context, exactly
// once per publish. Subscribers see changes only; the value current at
// subscription time is retrieved with Read.
type Channel interface {
	// Publish serializes value and delivers it under key. A value that
	// cannot be serialized fails with *SerializationError and nothing is
	// stored or delivered.
	Publish(key string, value any) error

	// Subscribe registers handler for future publishes on key. The handler
	// receives the raw serialized payload; typed wrappers decode it. A
	// handler may publish: the nested publish is queued and delivered after
	// the one in flight. The returned func cancels the subscription.
	Subscribe(key string, handler func(raw []byte)) (cancel func())

	// Read decodes the current value under key into "into". It reports
	// false when no value has ever been published.
	Read(key string, into any) (bool, error)

	// Close detaches the context from the transport.
	Close() error
}

// StateStore is the shared key-value store underneath the channel transport.
// Writes are last-write-wins overwrites at key granularity.
type StateStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Close() error
}

// Translator converts a doctor's audio into the patient's language. Calls
// may be slow and may fail; nothing beyond an opaque reference is assumed.
type Translator interface {
	Translate(ctx context.Context, audioRef, targetLanguage string) (string, error)
}

// EmotionAnalyzer extracts emotional insights from a patient message.
type EmotionAnalyzer interface {
	AnalyzeEmotion(ctx context.Context, content Content) (string, error)
}
