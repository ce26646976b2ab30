package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"carerelay/internal/conversation"
	"carerelay/internal/domain"
	"carerelay/internal/metrics"
)

// DoctorConfig configures the doctor-side pipeline.
type DoctorConfig struct {
	Channel      domain.Channel
	Translator   domain.Translator
	BaseLanguage string // reference language; translation is skipped when the target matches
	Logger       *slog.Logger
	Now          func() time.Time // test hook

	OnInsight      func(domain.InsightReport)
	OnConversation func([]domain.ConversationEntry)
}

// Doctor is the doctor context's message pipeline: it sends audio toward
// the patient and consumes the patient's insight reports.
type Doctor struct {
	ch         domain.Channel
	log        *conversation.Log
	translator domain.Translator
	baseLang   string
	logger     *slog.Logger
	clock      *msClock

	inbox          InsightInbox
	onInsight      func(domain.InsightReport)
	onConversation func([]domain.ConversationEntry)

	mu      sync.Mutex
	state   State
	cancels []func()
}

func NewDoctor(cfg DoctorConfig) *Doctor {
	if cfg.BaseLanguage == "" {
		cfg.BaseLanguage = "en"
	}
	return &Doctor{
		ch:             cfg.Channel,
		log:            conversation.NewLog(cfg.Channel, cfg.Logger),
		translator:     cfg.Translator,
		baseLang:       cfg.BaseLanguage,
		logger:         cfg.Logger,
		clock:          newMSClock(cfg.Now),
		onInsight:      cfg.OnInsight,
		onConversation: cfg.OnConversation,
		state:          StateIdle,
	}
}

// Start subscribes to the doctor inbox and the conversation channel. The
// subscription lifecycle belongs to the pipeline, not to any rendering
// layer; call Stop to tear it down.
func (d *Doctor) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cancels) > 0 {
		return
	}

	d.cancels = append(d.cancels, d.ch.Subscribe(domain.KeyDoctorInbox, func(raw []byte) {
		var report domain.InsightReport
		if err := json.Unmarshal(raw, &report); err != nil {
			metrics.Collector.Counter("carerelay_dropped_payloads_total", "Malformed inbound payloads dropped", `key="doctor-inbox"`).Inc()
			d.logger.Warn("malformed insight payload dropped", "err", err)
			return
		}
		d.inbox.Set(report)
		metrics.Collector.Counter("carerelay_insights_received_total", "Insight reports received", "").Inc()
		if d.onInsight != nil {
			d.onInsight(report)
		}
	}))

	// The patient context owns the append for its own messages; this side
	// only observes the shared log.
	d.cancels = append(d.cancels, d.log.Subscribe(func(entries []domain.ConversationEntry) {
		if d.onConversation != nil {
			d.onConversation(entries)
		}
	}))
}

// Stop cancels the pipeline's subscriptions.
func (d *Doctor) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
}

// State reports the phase of the most recent send attempt.
func (d *Doctor) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Doctor) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Insights returns the most recent insight report, if any.
func (d *Doctor) Insights() (domain.InsightReport, bool) {
	return d.inbox.Latest()
}

// Conversation returns the current shared log.
func (d *Doctor) Conversation() ([]domain.ConversationEntry, error) {
	return d.log.Snapshot()
}

// Send translates the captured audio for the patient, records the original
// in the conversation log, and delivers the translated audio on the patient
// inbox. When targetLanguage is empty the patient's preferred language is
// read from the shared store. A collaborator failure aborts the attempt and
// leaves every store untouched; the caller may resubmit.
func (d *Doctor) Send(ctx context.Context, audioRef, targetLanguage string) (Receipt, error) {
	if audioRef == "" {
		return Receipt{}, &domain.ValidationError{Field: "audioRef", Reason: "no audio data provided"}
	}
	d.setState(StateCaptured)

	lang := targetLanguage
	if lang == "" {
		if ok, err := d.ch.Read(domain.KeyPreferredLanguage, &lang); err != nil || !ok {
			lang = d.baseLang
		}
	}

	d.setState(StateEnriching)

	translated := audioRef
	message := "audio sent, no translation needed"
	if lang != d.baseLang {
		var err error
		translated, err = d.translator.Translate(ctx, audioRef, lang)
		if err != nil {
			d.setState(StateFailed)
			metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="doctor"`).Inc()
			d.logger.Error("translation failed", "target", lang, "err", err)
			return Receipt{State: StateFailed}, &domain.CollaboratorError{Op: "translate", Err: err}
		}
		message = "audio translated to " + lang
	}

	// History records the original audio; the patient inbox carries the
	// translated deliverable. The two writes are all-or-nothing from this
	// context's point of view: when the inbox publish fails, the append is
	// undone so a resubmit is not rejected as a duplicate.
	prior, err := d.log.Snapshot()
	if err != nil {
		d.setState(StateFailed)
		metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="doctor"`).Inc()
		return Receipt{State: StateFailed}, err
	}
	entry := conversation.NewEntry(domain.RoleDoctor, domain.AudioContent(audioRef), d.clock.Next())
	if err := d.log.Append(entry); err != nil {
		d.setState(StateFailed)
		metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="doctor"`).Inc()
		return Receipt{State: StateFailed}, err
	}
	if err := d.ch.Publish(domain.KeyPatientInbox, translated); err != nil {
		if rbErr := d.log.Restore(prior); rbErr != nil {
			d.logger.Error("append rollback failed", "entry", entry.ID, "err", rbErr)
		}
		d.setState(StateFailed)
		metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="doctor"`).Inc()
		return Receipt{State: StateFailed}, err
	}

	d.setState(StateDelivered)
	metrics.Collector.Counter("carerelay_sends_total", "Completed send attempts", `role="doctor"`).Inc()
	d.logger.Info("message delivered", "entry", entry.ID, "language", lang)

	return Receipt{State: StateDelivered, Message: message, Delivered: translated}, nil
}
