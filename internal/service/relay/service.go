package relay

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/zhouzirui/persona-relay/internal/config"
	"github.com/zhouzirui/persona-relay/internal/model/chat"
	"github.com/zhouzirui/persona-relay/internal/model/persona"
	"github.com/zhouzirui/persona-relay/internal/service/ai"
	"github.com/zhouzirui/persona-relay/internal/service/session"
	"github.com/zhouzirui/persona-relay/internal/store/usage"
)

// ConversationOpener opens model contexts; *ai.Service satisfies it.
type ConversationOpener interface {
	OpenConversation(ctx context.Context) (chat.Conversation, error)
}

// TurnRequest is one turn submitted by a client.
type TurnRequest struct {
	ChatID             string
	Persona            persona.Persona
	Messages           []chat.Message
	Text               string
	CustomInstructions string
	Limits             Limits
}

// Transcript renders the structured messages, falling back to the plain text.
func (r TurnRequest) Transcript() string {
	if len(r.Messages) > 0 {
		return chat.RenderTranscript(r.Messages)
	}
	return r.Text
}

// TurnResult is the reply to one turn together with session bookkeeping.
type TurnResult struct {
	Reply        string
	PersonaID    *string
	ChatID       string
	Status       chat.Status
	TimeElapsed  float64
	MessagesSent int
}

// Service drives persona turns through the model and tracks session usage.
type Service struct {
	store  *session.Store
	model  ConversationOpener
	ledger usage.Recorder
	cfg    config.RelayConfig
	prompt ai.PromptOptions
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder reports closed sessions to a usage ledger.
func WithRecorder(rec usage.Recorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.ledger = rec
		}
	}
}

// NewService wires the relay. A nil model makes every turn fail with a
// configuration error instead of preventing startup.
func NewService(store *session.Store, model ConversationOpener, cfg config.RelayConfig, opts ...Option) *Service {
	s := &Service{
		store:  store,
		model:  model,
		ledger: usage.NopRecorder{},
		cfg:    cfg,
		prompt: ai.PromptOptions{FallbackName: cfg.FallbackName, MaxWords: cfg.ReplyMaxWords},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessTurn creates or resumes the session, enforces limits and relays the
// turn to the model.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	const op = "process turn"

	if s.model == nil {
		return TurnResult{}, newError(KindConfig, op, errors.New(config.MissingCredentialMessage))
	}
	if req.ChatID == "" {
		return TurnResult{}, newError(KindInput, op, session.ErrIDRequired)
	}

	entry, created, err := s.store.GetOrCreate(ctx, req.ChatID, func(ctx context.Context) (*chat.Session, error) {
		conv, err := s.model.OpenConversation(ctx)
		if err != nil {
			return nil, err
		}
		now := s.now()
		return &chat.Session{
			Persona:            req.Persona,
			CustomInstructions: req.CustomInstructions,
			Conversation:       conv,
			StartTime:          now,
			LastActivity:       now,
			Status:             chat.StatusActive,
		}, nil
	})
	if err != nil {
		log.Printf("[relay] failed to open session chat=%s: %v", req.ChatID, err)
		return TurnResult{}, upstreamError(op, err)
	}
	if created {
		log.Printf("[relay] created session chat=%s persona=%s", req.ChatID, req.Persona.ID)
	}

	sess := entry.Lock()
	defer entry.Unlock()

	sess.MessagesSent++
	sess.LastActivity = s.now()

	personaID := req.Persona.IDOrNil()
	if personaID == nil {
		personaID = sess.Persona.IDOrNil()
	}
	result := TurnResult{
		PersonaID:    personaID,
		ChatID:       sess.ID,
		MessagesSent: sess.MessagesSent,
		TimeElapsed:  sess.ActivityElapsed(),
	}

	limits := resolveLimits(s.cfg, req.Limits)
	if sess.Status == chat.StatusFinished || limits.exceeded(sess) {
		if sess.Status != chat.StatusFinished {
			log.Printf("[relay] session finished chat=%s messages=%d elapsed=%.2fm", sess.ID, sess.MessagesSent, result.TimeElapsed)
		}
		sess.Status = chat.StatusFinished
		result.Status = chat.StatusFinished
		result.Reply = s.cfg.ClosingMessage
		return result, nil
	}

	if !sess.Initialized {
		directive := ai.BuildPrimeDirective(sess.Persona, sess.CustomInstructions, s.prompt)
		if _, err := s.send(ctx, sess.Conversation, directive); err != nil {
			log.Printf("[relay] prime directive failed chat=%s: %v", sess.ID, err)
			return TurnResult{}, upstreamError(op, err)
		}
		sess.Initialized = true
	}

	reply, err := s.send(ctx, sess.Conversation, ai.ChatContext(req.Transcript()))
	if err != nil {
		log.Printf("[relay] model call failed chat=%s: %v", sess.ID, err)
		return TurnResult{}, upstreamError(op, err)
	}

	result.Reply = reply
	result.Status = sess.Status
	return result, nil
}

func (s *Service) send(ctx context.Context, conv chat.Conversation, text string) (string, error) {
	if s.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ModelTimeout)
		defer cancel()
	}
	return conv.Send(ctx, text)
}

// EndConversation removes the session and returns its final usage.
func (s *Service) EndConversation(ctx context.Context, chatID string) (chat.Summary, error) {
	const op = "end conversation"

	entry, err := s.store.Delete(chatID)
	if err != nil {
		return chat.Summary{}, newError(KindNotFound, op, ErrConversationNotFound)
	}

	sess := entry.Lock()
	summary := sess.Summarize(s.now())
	entry.Unlock()

	log.Printf("[relay] ended session chat=%s messages=%d elapsed=%.2fm", chatID, summary.MessagesSent, summary.TimeElapsed)
	s.record(ctx, summary, usage.ReasonTerminated)
	return summary, nil
}

// Inspect reports the usage of a live session without touching its counters.
func (s *Service) Inspect(_ context.Context, chatID string) (chat.Summary, error) {
	entry, err := s.store.Get(chatID)
	if err != nil {
		return chat.Summary{}, newError(KindNotFound, "inspect session", ErrConversationNotFound)
	}

	sess := entry.Lock()
	defer entry.Unlock()
	return sess.Summarize(s.now()), nil
}

// Sessions lists the usage of every live session.
func (s *Service) Sessions(_ context.Context) []chat.Summary {
	return s.store.Snapshot(s.now())
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.store.Len()
}

// Usage returns ledger totals and the most recent closed sessions.
func (s *Service) Usage(ctx context.Context, limit int) (usage.Totals, []usage.Record, error) {
	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		return usage.Totals{}, nil, newError(KindUpstream, "usage", err)
	}
	recent, err := s.ledger.Recent(ctx, limit)
	if err != nil {
		return usage.Totals{}, nil, newError(KindUpstream, "usage", err)
	}
	return totals, recent, nil
}

// SweepExpired removes sessions idle past the configured TTL.
func (s *Service) SweepExpired(ctx context.Context) int {
	expired := s.store.Sweep(s.now(), s.cfg.SessionIdleTTL)
	for _, summary := range expired {
		log.Printf("[relay] expired idle session chat=%s messages=%d", summary.ChatID, summary.MessagesSent)
		s.record(ctx, summary, usage.ReasonExpired)
	}
	return len(expired)
}

// StartJanitor sweeps idle sessions in the background until ctx is done. It
// does nothing when no idle TTL is configured.
func (s *Service) StartJanitor(ctx context.Context) {
	if s.cfg.SessionIdleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		log.Printf("[relay] janitor started, interval=%s ttl=%s", s.cfg.SweepInterval, s.cfg.SessionIdleTTL)

		for {
			select {
			case <-ticker.C:
				s.SweepExpired(ctx)
			case <-ctx.Done():
				log.Printf("[relay] janitor stopped: %v", ctx.Err())
				return
			}
		}
	}()
}

func (s *Service) record(ctx context.Context, summary chat.Summary, reason usage.Reason) {
	rec := usage.Record{
		ChatID:       summary.ChatID,
		PersonaID:    summary.PersonaID,
		MessagesSent: summary.MessagesSent,
		TimeElapsed:  summary.TimeElapsed,
		Status:       string(summary.Status),
		Reason:       reason,
		StartedAt:    summary.StartTime,
		EndedAt:      summary.EndTime,
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		log.Printf("[usage] failed to record session chat=%s reason=%s: %v", summary.ChatID, reason, err)
	}
}
