package service

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/openclaw/companion-server-go/internal/audit"
	"github.com/openclaw/companion-server-go/internal/companion"
	"github.com/openclaw/companion-server-go/internal/crisis"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/gateway"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
	"github.com/openclaw/companion-server-go/internal/reply"
	"github.com/openclaw/companion-server-go/internal/sse"
)

// ApologyText is appended when the gateway fails. It carries no phase tag.
const ApologyText = "I'm sorry, I couldn't respond just now. Please try sending your message again."

// DefaultContinuationTTL bounds how long an awaiting-acknowledgment turn
// blocks its conversation.
const DefaultContinuationTTL = 10 * time.Minute

type EngineConfig struct {
	Locale              string
	MaxMessageLength    int
	GatewayTimeout      time.Duration
	TherapyHistoryTurns int
	ContinuationTTL     time.Duration
}

// Notifier receives chat events for live streams. It may be nil.
type Notifier interface {
	Emit(ctx context.Context, sessionID, eventType string, payload any) error
}

type TurnResult struct {
	Status         model.TurnStatus `json:"status"`
	Route          model.Route      `json:"route"`
	UserMessage    *model.Message   `json:"userMessage,omitempty"`
	Reply          *model.Message   `json:"reply,omitempty"`
	CrisisFlagged  bool             `json:"crisisFlagged"`
	SettingUp      bool             `json:"settingUp"`
	ContinuationID string           `json:"continuationId,omitempty"`
	Progress       model.Progress   `json:"progress"`
}

// OpenResult carries the pending continuation, if any, so a client that lost
// the awaiting-acknowledgment response can still finish the turn.
type OpenResult struct {
	Companion      string          `json:"companion"`
	Messages       []model.Message `json:"messages"`
	Progress       model.Progress  `json:"progress"`
	SettingUp      bool            `json:"settingUp"`
	ContinuationID string          `json:"continuationId,omitempty"`
}

type conversation struct {
	key           model.ConversationKey
	messages      []model.Message
	progress      model.Progress
	paywallPassed bool
	settingUp     bool
	pending       *continuation
}

type continuation struct {
	id        string
	userText  string
	createdAt time.Time
}

// ConversationEngine turns one user message into one companion message.
//
// Transcripts are cached per (session, companion) after the first load; the
// store stays the source of truth on a cold start. Each session has one
// active companion, and gateway replies for any other pair are discarded.
type ConversationEngine struct {
	cfg      EngineConfig
	store    *SessionStore
	gateway  gateway.Gateway
	resolver *phase.Resolver
	limiter  *SendLimiter
	notifier Notifier

	now   func() time.Time
	newID func() string

	loads singleflight.Group

	mu            sync.Mutex
	conversations map[model.ConversationKey]*conversation
	active        map[string]string
}

func NewConversationEngine(
	cfg EngineConfig,
	store *SessionStore,
	gw gateway.Gateway,
	resolver *phase.Resolver,
	limiter *SendLimiter,
	notifier Notifier,
) *ConversationEngine {
	if !phase.SupportedLocale(cfg.Locale) {
		cfg.Locale = phase.LocaleDE
	}
	if cfg.ContinuationTTL <= 0 {
		cfg.ContinuationTTL = DefaultContinuationTTL
	}
	return &ConversationEngine{
		cfg:           cfg,
		store:         store,
		gateway:       gw,
		resolver:      resolver,
		limiter:       limiter,
		notifier:      notifier,
		now:           time.Now,
		newID:         func() string { return uuid.Must(uuid.NewV7()).String() },
		conversations: make(map[model.ConversationKey]*conversation),
		active:        make(map[string]string),
	}
}

// Open rehydrates a conversation and makes it the session's active one. An
// empty transcript is seeded with the companion's greeting.
func (e *ConversationEngine) Open(ctx context.Context, tc model.TurnContext) (*OpenResult, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return nil, err
	}

	conv, err := e.load(ctx, tc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.active[tc.SessionID] = tc.Companion
	e.expirePending(conv)

	res := &OpenResult{
		Companion: tc.Companion,
		Messages:  cloneMessages(conv.messages),
		Progress:  conv.progress,
		SettingUp: conv.settingUp,
	}
	if conv.pending != nil {
		res.ContinuationID = conv.pending.id
	}
	return res, nil
}

// Transcript returns the cached transcript, loading it if needed.
func (e *ConversationEngine) Transcript(ctx context.Context, tc model.TurnContext) ([]model.Message, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return nil, err
	}
	conv, err := e.load(ctx, tc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneMessages(conv.messages), nil
}

func (e *ConversationEngine) Progress(ctx context.Context, tc model.TurnContext) (model.Progress, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return model.Progress{}, err
	}
	conv, err := e.load(ctx, tc)
	if err != nil {
		return model.Progress{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return conv.progress, nil
}

// ActiveCompanion reports which companion the session is talking to.
func (e *ConversationEngine) ActiveCompanion(sessionID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name, ok := e.active[sessionID]
	return name, ok
}

// MarkPaywallPassed moves an onboarding conversation to therapy. It is the
// only transition not driven by a message turn.
func (e *ConversationEngine) MarkPaywallPassed(ctx context.Context, tc model.TurnContext) (model.Progress, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return model.Progress{}, err
	}
	conv, err := e.load(ctx, tc)
	if err != nil {
		return model.Progress{}, err
	}

	e.mu.Lock()
	conv.paywallPassed = true
	conv.progress.IsOnboarding = false
	conv.progress.LocalQuestionIndex = phase.LocalQuestionCount
	conv.progress.Phase = phase.TherapyPhaseOrDefault(conv.progress.Phase)
	progress := conv.progress
	e.mu.Unlock()

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPaywallPassed,
		UserID:    tc.UserID,
		SessionID: tc.SessionID,
		Companion: tc.Companion,
	})
	e.emit(ctx, tc.SessionID, sse.EventProgress, progress)

	return progress, nil
}

// Send processes one user message.
func (e *ConversationEngine) Send(ctx context.Context, tc model.TurnContext, text string) (*TurnResult, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ValidationError("Message must not be empty")
	}
	if e.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > e.cfg.MaxMessageLength {
		return nil, apperrors.MessageTooLong(e.cfg.MaxMessageLength)
	}

	conv, err := e.load(ctx, tc)
	if err != nil {
		return nil, err
	}

	// Rejections that leave the conversation untouched must not spend the
	// send slot, so admission is checked before and again after Allow.
	e.mu.Lock()
	decision, err := e.admit(tc, conv)
	e.mu.Unlock()
	if err != nil {
		e.auditRejection(ctx, tc, decision, err)
		return nil, err
	}

	if err := e.limiter.Allow(ctx, tc.SessionID); err != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventRateLimitExceed,
			UserID:    tc.UserID,
			SessionID: tc.SessionID,
			Companion: tc.Companion,
		})
		return nil, err
	}

	e.mu.Lock()
	decision, err = e.admit(tc, conv)
	if err == nil {
		e.active[tc.SessionID] = tc.Companion
	}
	e.mu.Unlock()
	if err != nil {
		e.auditRejection(ctx, tc, decision, err)
		return nil, err
	}

	flagged := crisis.Detect(text)
	if flagged {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventCrisisFlagged,
			UserID:    tc.UserID,
			SessionID: tc.SessionID,
			Companion: tc.Companion,
		})
		e.emit(ctx, tc.SessionID, sse.EventCrisis, map[string]any{"companion": tc.Companion, "visible": true})
	}

	userMsg := e.newMessage(tc, model.SenderUser, text)
	if _, err := e.store.Append(ctx, tc, userMsg); err != nil {
		return nil, apperrors.Database(err)
	}

	e.mu.Lock()
	conv.messages = append(conv.messages, *userMsg)
	conv.progress.UserMessageCount++
	e.mu.Unlock()
	e.emit(ctx, tc.SessionID, sse.EventMessage, userMsg)

	var result *TurnResult
	switch decision.Route {
	case model.RouteLocalQuestion:
		result, err = e.askLocalQuestion(ctx, tc, conv, decision.QuestionIndex)
		if err != nil {
			return nil, err
		}

	case model.RouteGatewayOnboarding:
		e.mu.Lock()
		firstGatewayTurn := !phase.IsGatewayPhase(conv.progress.Phase)
		e.mu.Unlock()
		if firstGatewayTurn {
			result = e.awaitAck(tc, conv, text)
		} else {
			result = e.runGateway(ctx, tc, conv, decision.Route, text)
		}

	default:
		result = e.runGateway(ctx, tc, conv, decision.Route, text)
	}

	result.UserMessage = userMsg
	result.CrisisFlagged = flagged
	return result, nil
}

// admit decides the route for the next user turn or rejects it. It must be
// called with e.mu held.
func (e *ConversationEngine) admit(tc model.TurnContext, conv *conversation) (phase.Decision, error) {
	e.expirePending(conv)
	if conv.settingUp {
		err := apperrors.Conflict("The previous turn is waiting to be continued")
		if conv.pending != nil {
			err = err.WithDetails(map[string]string{"continuationId": conv.pending.id})
		}
		return phase.Decision{}, err
	}

	decision := e.resolver.Resolve(phase.Input{
		IsOnboarding:       conv.progress.IsOnboarding && !conv.paywallPassed,
		LocalQuestionIndex: conv.progress.LocalQuestionIndex,
		IsProEntitled:      tc.Entitlement.Pro,
	})
	if decision.Route != model.RouteLocalQuestion && !tc.Authenticated() {
		return decision, apperrors.LoginRequired()
	}
	return decision, nil
}

func (e *ConversationEngine) auditRejection(ctx context.Context, tc model.TurnContext, decision phase.Decision, err error) {
	if !apperrors.HasCode(err, apperrors.ErrCodeLoginRequired) {
		return
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventLoginRequired,
		SessionID: tc.SessionID,
		Companion: tc.Companion,
		Details:   map[string]interface{}{"route": string(decision.Route)},
	})
}

// expirePending drops a continuation nobody acknowledged within the TTL and
// unblocks the conversation. It must be called with e.mu held.
func (e *ConversationEngine) expirePending(conv *conversation) {
	if conv.pending == nil || e.now().Sub(conv.pending.createdAt) <= e.cfg.ContinuationTTL {
		return
	}
	log.Info().
		Str("sessionId", conv.key.SessionID).
		Str("companion", conv.key.Companion).
		Str("continuationId", conv.pending.id).
		Msg("continuation expired")
	conv.pending = nil
	conv.settingUp = false
}

// Continue performs the gateway call a previous Send deferred with
// TurnStatusAwaitingAck. Each continuation can be used once and only until
// it expires.
func (e *ConversationEngine) Continue(ctx context.Context, tc model.TurnContext, continuationID string) (*TurnResult, error) {
	tc, err := normalizeContext(tc)
	if err != nil {
		return nil, err
	}
	if !tc.Authenticated() {
		return nil, apperrors.LoginRequired()
	}

	e.mu.Lock()
	conv := e.conversations[tc.Key()]
	if conv != nil {
		e.expirePending(conv)
	}
	if conv == nil || conv.pending == nil || conv.pending.id != continuationID {
		e.mu.Unlock()
		return nil, apperrors.NotFound("Continuation")
	}
	cont := conv.pending
	conv.pending = nil
	e.mu.Unlock()

	return e.runGateway(ctx, tc, conv, model.RouteGatewayOnboarding, cont.userText), nil
}

func (e *ConversationEngine) askLocalQuestion(ctx context.Context, tc model.TurnContext, conv *conversation, index int) (*TurnResult, error) {
	q, err := phase.LocalQuestion(e.cfg.Locale, index)
	if err != nil {
		return nil, apperrors.Internal("Local question unavailable").WithCause(err)
	}

	msg := e.newMessage(tc, model.SenderCompanion, q.Text)
	msg.PhaseTag = phase.TagEinstellungs
	msg.Affordances = &model.Affordances{QuickReplies: q.Options}

	if _, err := e.store.Append(ctx, tc, msg); err != nil {
		log.Error().Err(err).Str("sessionId", tc.SessionID).Msg("failed to persist local question")
	}

	e.mu.Lock()
	conv.messages = append(conv.messages, *msg)
	conv.progress.LocalQuestionIndex = index + 1
	conv.progress.Phase = phase.TagEinstellungs
	progress := conv.progress
	e.mu.Unlock()

	e.emit(ctx, tc.SessionID, sse.EventMessage, msg)

	return &TurnResult{
		Status:   model.TurnStatusCompleted,
		Route:    model.RouteLocalQuestion,
		Reply:    msg,
		Progress: progress,
	}, nil
}

func (e *ConversationEngine) awaitAck(tc model.TurnContext, conv *conversation, userText string) *TurnResult {
	cont := &continuation{
		id:        e.newID(),
		userText:  userText,
		createdAt: e.now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	conv.settingUp = true
	conv.pending = cont

	log.Info().
		Str("sessionId", tc.SessionID).
		Str("companion", tc.Companion).
		Msg("local questions finished, waiting for acknowledgment")

	return &TurnResult{
		Status:         model.TurnStatusAwaitingAck,
		Route:          model.RouteGatewayOnboarding,
		SettingUp:      true,
		ContinuationID: cont.id,
		Progress:       conv.progress,
	}
}

func (e *ConversationEngine) runGateway(ctx context.Context, tc model.TurnContext, conv *conversation, route model.Route, userText string) *TurnResult {
	key := tc.Key()

	e.mu.Lock()
	if !e.isActive(key) {
		conv.settingUp = false
		e.mu.Unlock()
		return e.discarded(route, key)
	}
	previousPhase := conv.progress.Phase
	limit := 0
	if route == model.RouteGatewayTherapy {
		limit = e.cfg.TherapyHistoryTurns
	}
	history := gateway.BuildHistory(conv.messages, limit)
	e.mu.Unlock()

	callCtx := ctx
	if e.cfg.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.GatewayTimeout)
		defer cancel()
	}

	start := e.now()
	msg, err := e.callGateway(callCtx, tc, route, history, previousPhase)
	elapsed := e.now().Sub(start)

	e.mu.Lock()
	conv.settingUp = false
	if !e.isActive(key) {
		e.mu.Unlock()
		return e.discarded(route, key)
	}
	e.mu.Unlock()

	status := model.TurnStatusCompleted
	if err != nil {
		log.Error().
			Err(apperrors.External("ai gateway", err)).
			Str("sessionId", tc.SessionID).
			Str("companion", tc.Companion).
			Str("route", string(route)).
			Dur("elapsed", elapsed).
			Msg("gateway turn failed, answering with apology")
		msg = e.newMessage(tc, model.SenderCompanion, ApologyText)
		status = model.TurnStatusGatewayFailed
	} else {
		if route == model.RouteGatewayOnboarding &&
			phase.NeedsSolutionProposal(previousPhase, msg.PhaseTag, userText) {
			msg.Affordances = &model.Affordances{QuickReplies: phase.SolutionProposalReplies(e.cfg.Locale)}
		}
		if msg.PhaseTag == phase.TagSales && !tc.Entitlement.Pro {
			msg.Affordances = &model.Affordances{UpgradeButton: true}
		}
	}

	if _, err := e.store.Append(ctx, tc, msg); err != nil {
		log.Error().Err(err).Str("sessionId", tc.SessionID).Msg("failed to persist companion reply")
	}

	e.mu.Lock()
	conv.messages = append(conv.messages, *msg)
	if status == model.TurnStatusCompleted {
		conv.progress.Phase = msg.PhaseTag
	}
	progress := conv.progress
	e.mu.Unlock()

	e.emit(ctx, tc.SessionID, sse.EventMessage, msg)

	return &TurnResult{
		Status:   status,
		Route:    route,
		Reply:    msg,
		Progress: progress,
	}
}

// callGateway runs the turn and builds the parsed companion message.
func (e *ConversationEngine) callGateway(ctx context.Context, tc model.TurnContext, route model.Route, history []gateway.ChatMessage, previousPhase string) (*model.Message, error) {
	var text, tag, safety string
	var hasMemory bool

	switch route {
	case model.RouteGatewayTherapy:
		current := phase.TherapyPhaseOrDefault(previousPhase)
		resp, err := e.gateway.RunTherapyTurn(ctx, tc.AuthToken, tc.Companion, history, current, tc.Entitlement.Pro)
		if err != nil {
			return nil, err
		}
		text, tag, safety, hasMemory = resp.Text, resp.Phase, resp.Safety, resp.HasMemory
		if !phase.IsTherapyPhase(tag) {
			tag = current
		}
		log.Debug().
			Str("sessionId", tc.SessionID).
			Str("phase", tag).
			Str("topic", resp.Topic).
			Bool("reminderCreated", resp.ReminderCreated).
			Msg("therapy turn routed")

	default:
		resp, err := e.gateway.RunOnboardingTurn(ctx, tc.AuthToken, tc.Companion, history)
		if err != nil {
			return nil, err
		}
		text, tag = resp.Text, resp.Phase
		if !phase.IsGatewayPhase(tag) {
			tag = previousPhase
		}
		log.Debug().
			Str("sessionId", tc.SessionID).
			Str("phase", tag).
			Int("userMessageCount", resp.UserMessageCount).
			Msg("onboarding turn answered")
	}

	parsed := reply.Parse(tag, text)
	msg := e.newMessage(tc, model.SenderCompanion, parsed.Text)
	if parsed.Text != text {
		msg.RawText = text
	}
	msg.PhaseTag = tag
	msg.Safety = safety
	msg.HasMemory = hasMemory
	msg.Affordances = parsed.Affordances
	return msg, nil
}

func (e *ConversationEngine) discarded(route model.Route, key model.ConversationKey) *TurnResult {
	log.Info().
		Str("sessionId", key.SessionID).
		Str("companion", key.Companion).
		Msg("discarding gateway reply for inactive conversation")
	return &TurnResult{Status: model.TurnStatusDiscarded, Route: route}
}

// isActive must be called with e.mu held.
func (e *ConversationEngine) isActive(key model.ConversationKey) bool {
	return e.active[key.SessionID] == key.Companion
}

func (e *ConversationEngine) load(ctx context.Context, tc model.TurnContext) (*conversation, error) {
	key := tc.Key()

	e.mu.Lock()
	if conv, ok := e.conversations[key]; ok {
		e.mu.Unlock()
		return conv, nil
	}
	e.mu.Unlock()

	v, err, _ := e.loads.Do(key.String(), func() (interface{}, error) {
		msgs, err := e.store.LoadAll(ctx, key)
		if err != nil {
			return nil, apperrors.Database(err)
		}

		if len(msgs) == 0 {
			c, _ := companion.Lookup(tc.Companion)
			greeting := e.newMessage(tc, model.SenderCompanion, c.Greeting(tc.Entitlement.Pro))
			greeting.PhaseTag = phase.TagGreeting
			if _, err := e.store.Append(ctx, tc, greeting); err != nil {
				log.Error().Err(err).Str("sessionId", tc.SessionID).Msg("failed to persist greeting")
			}
			msgs = []model.Message{*greeting}
		}

		conv := &conversation{
			key:      key,
			messages: msgs,
			progress: e.resolver.Derive(msgs, tc.Entitlement.Pro),
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.conversations[key]; ok {
			return existing, nil
		}
		e.conversations[key] = conv

		log.Info().
			Str("sessionId", key.SessionID).
			Str("companion", key.Companion).
			Int("messages", len(msgs)).
			Int("userMessages", conv.progress.UserMessageCount).
			Bool("onboarding", conv.progress.IsOnboarding).
			Msg("conversation loaded")

		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*conversation), nil
}

func (e *ConversationEngine) newMessage(tc model.TurnContext, sender model.Sender, text string) *model.Message {
	return &model.Message{
		ID:        e.newID(),
		SessionID: tc.SessionID,
		Companion: tc.Companion,
		UserID:    tc.UserID,
		Sender:    sender,
		Text:      text,
		CreatedAt: e.now(),
	}
}

func (e *ConversationEngine) emit(ctx context.Context, sessionID, eventType string, payload any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Emit(ctx, sessionID, eventType, payload); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("event", eventType).Msg("failed to publish chat event")
	}
}

// normalizeContext checks the identity fields and canonicalises the
// companion name so cache keys and stored rows agree.
func normalizeContext(tc model.TurnContext) (model.TurnContext, error) {
	if tc.SessionID == "" {
		return tc, apperrors.MissingRequired("sessionId")
	}
	c, ok := companion.Lookup(tc.Companion)
	if !ok {
		return tc, apperrors.NotFound("Companion")
	}
	tc.Companion = c.Name
	return tc, nil
}

func cloneMessages(src []model.Message) []model.Message {
	out := make([]model.Message, len(src))
	copy(out, src)
	return out
}
