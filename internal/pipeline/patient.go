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

// PatientConfig configures the patient-side pipeline.
type PatientConfig struct {
	Channel  domain.Channel
	Analyzer domain.EmotionAnalyzer
	Logger   *slog.Logger
	Now      func() time.Time // test hook

	OnDelivered    func(domain.ConversationEntry) // a new doctor message became playable
	OnConversation func([]domain.ConversationEntry)
}

// Patient is the patient context's message pipeline: it sends responses
// toward the doctor and consumes the doctor's delivered audio.
type Patient struct {
	ch       domain.Channel
	log      *conversation.Log
	analyzer domain.EmotionAnalyzer
	logger   *slog.Logger
	clock    *msClock
	view     mergedView

	onDelivered    func(domain.ConversationEntry)
	onConversation func([]domain.ConversationEntry)

	mu      sync.Mutex
	state   State
	cancels []func()
}

func NewPatient(cfg PatientConfig) *Patient {
	return &Patient{
		ch:             cfg.Channel,
		log:            conversation.NewLog(cfg.Channel, cfg.Logger),
		analyzer:       cfg.Analyzer,
		logger:         cfg.Logger,
		clock:          newMSClock(cfg.Now),
		onDelivered:    cfg.OnDelivered,
		onConversation: cfg.OnConversation,
		state:          StateIdle,
	}
}

// Start subscribes to the patient inbox and the conversation channel.
func (p *Patient) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cancels) > 0 {
		return
	}

	p.cancels = append(p.cancels, p.ch.Subscribe(domain.KeyPatientInbox, func(raw []byte) {
		var ref string
		if err := json.Unmarshal(raw, &ref); err != nil || ref == "" {
			metrics.Collector.Counter("carerelay_dropped_payloads_total", "Malformed inbound payloads dropped", `key="patient-inbox"`).Inc()
			p.logger.Warn("malformed inbox payload dropped", "err", err)
			return
		}
		entry := conversation.NewEntry(domain.RoleDoctor, domain.AudioContent(ref), p.clock.Next())
		if !p.view.addDelivered(entry) {
			return // already known via either channel
		}
		p.logger.Info("doctor message delivered", "ref_len", len(ref))
		if p.onDelivered != nil {
			p.onDelivered(entry)
		}
	}))

	p.cancels = append(p.cancels, p.log.Subscribe(func(entries []domain.ConversationEntry) {
		p.view.setShared(entries)
		if p.onConversation != nil {
			p.onConversation(p.view.Entries())
		}
	}))
}

// Stop cancels the pipeline's subscriptions.
func (p *Patient) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
}

// State reports the phase of the most recent send attempt.
func (p *Patient) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Patient) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Conversation returns the merged local view: the shared log plus delivered
// doctor messages not yet reflected in it.
func (p *Patient) Conversation() []domain.ConversationEntry {
	return p.view.Entries()
}

// Send analyzes the patient's response and delivers the insight report on
// the doctor inbox. A response is singular: when both a recording and typed
// text are present, the text wins and the pending audio is discarded. Only
// audio responses are appended to the conversation log; a text-only
// response still produces a report. (Deliberate policy, pending product
// confirmation; the log is audio-oriented.)
func (p *Patient) Send(ctx context.Context, audioRef, text string) (Receipt, error) {
	var content domain.Content
	switch {
	case text != "":
		content = domain.TextContent(text)
	case audioRef != "":
		content = domain.AudioContent(audioRef)
	default:
		return Receipt{}, &domain.ValidationError{Field: "content", Reason: "no audio or text data provided for analysis"}
	}

	p.setState(StateCaptured)
	p.setState(StateEnriching)

	insights, err := p.analyzer.AnalyzeEmotion(ctx, content)
	if err != nil {
		p.setState(StateFailed)
		metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="patient"`).Inc()
		p.logger.Error("emotion analysis failed", "kind", content.Kind, "err", err)
		return Receipt{State: StateFailed}, &domain.CollaboratorError{Op: "analyze", Err: err}
	}

	// Append and report are all-or-nothing: an appended audio entry is
	// undone when the report publish fails, so a resubmit is not rejected
	// as a duplicate.
	appended := false
	var prior []domain.ConversationEntry
	if content.Kind == domain.ContentAudio {
		var err error
		prior, err = p.log.Snapshot()
		if err != nil {
			p.setState(StateFailed)
			metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="patient"`).Inc()
			return Receipt{State: StateFailed}, err
		}
		entry := conversation.NewEntry(domain.RolePatient, content, p.clock.Next())
		if err := p.log.Append(entry); err != nil {
			p.setState(StateFailed)
			metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="patient"`).Inc()
			return Receipt{State: StateFailed}, err
		}
		appended = true
	}

	playable := content.AudioRef
	if content.Kind == domain.ContentText {
		playable = domain.SilentAudioRef
	}
	report := domain.InsightReport{Insights: insights, Subject: content, PlayableRef: playable}
	if err := p.ch.Publish(domain.KeyDoctorInbox, report); err != nil {
		if appended {
			if rbErr := p.log.Restore(prior); rbErr != nil {
				p.logger.Error("append rollback failed", "err", rbErr)
			}
		}
		p.setState(StateFailed)
		metrics.Collector.Counter("carerelay_send_failures_total", "Failed send attempts", `role="patient"`).Inc()
		return Receipt{State: StateFailed}, err
	}

	p.setState(StateDelivered)
	metrics.Collector.Counter("carerelay_sends_total", "Completed send attempts", `role="patient"`).Inc()
	p.logger.Info("response delivered", "kind", content.Kind, "insight_len", len(insights))

	return Receipt{State: StateDelivered, Message: "patient response analyzed", Delivered: playable}, nil
}
