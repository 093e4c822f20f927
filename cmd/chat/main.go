// Command chat talks to a companion from the terminal. It runs the
// conversation engine in-process against a local database, so it needs a
// gateway but no running server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/companion"
	"github.com/openclaw/companion-server-go/internal/config"
	"github.com/openclaw/companion-server-go/internal/database"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/gateway"
	"github.com/openclaw/companion-server-go/internal/middleware"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
	"github.com/openclaw/companion-server-go/internal/repository"
	"github.com/openclaw/companion-server-go/internal/service"
)

const (
	defaultDatabaseURL = "sqlite://companion-chat.db"
	localTokenTTL      = 24 * time.Hour
)

func main() {
	companionName := flag.String("companion", "Marcus", "companion to talk to")
	deviceID := flag.String("device", defaultDeviceID(), "device id the chat session is bound to")
	userID := flag.String("user", os.Getenv("COMPANION_USER"), "signed-in user id; empty chats anonymously")
	pro := flag.Bool("pro", false, "treat the user as Pro entitled")
	plain := flag.Bool("plain", false, "print raw markdown")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env")
	}
	if os.Getenv("DATABASE_URL") == "" {
		os.Setenv("DATABASE_URL", defaultDatabaseURL)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(false); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	c, ok := companion.Lookup(*companionName)
	if !ok {
		log.Fatal().Str("companion", *companionName).Msg("unknown companion")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	engine := service.NewConversationEngine(
		service.EngineConfig{
			Locale:              cfg.Locale,
			MaxMessageLength:    cfg.MaxMessageLength,
			GatewayTimeout:      cfg.GatewayTimeout(),
			TherapyHistoryTurns: cfg.TherapyHistoryTurns,
			ContinuationTTL:     cfg.ContinuationTTL(),
		},
		service.NewSessionStore(repository.NewChatMessageRepository(db.DB)),
		newGateway(cfg),
		phase.NewResolver(cfg.OnboardingThreshold),
		service.NewSendLimiter(service.NewMemoryRateLimiter(), cfg.SendInterval()),
		nil,
	)
	sessions := service.NewSessionService(repository.NewDeviceSessionRepository(db.DB))
	pending := service.NewPendingService(db, repository.NewPendingCompanionRepository(db.DB), cfg.PendingTTL())

	sess, _, err := sessions.ResolveForDevice(ctx, *deviceID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve session")
	}

	tc := model.TurnContext{
		SessionID:   sess.ID,
		Companion:   c.Name,
		Entitlement: model.Entitlement{Pro: *pro},
	}
	if *userID != "" {
		tc.UserID = *userID
		tc.AuthToken = localToken(cfg.JWTSecret, *userID, *pro)
	}

	cli := &chat{
		engine:  engine,
		pending: pending,
		ui:      newDisplay(os.Stdout, *plain),
		tc:      tc,
	}
	if err := cli.run(ctx, os.Stdin); err != nil {
		log.Fatal().Err(err).Msg("chat ended with error")
	}
}

type chat struct {
	engine  *service.ConversationEngine
	pending *service.PendingService
	ui      *display
	tc      model.TurnContext
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	if err := c.resumePending(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		c.ui.Prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			quit, err := c.command(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		default:
			c.send(ctx, c.ui.Choose(line))
		}
	}
}

// resumePending picks up a companion and message stored before sign-in,
// then opens the conversation.
func (c *chat) resumePending(ctx context.Context) error {
	var message string
	if c.tc.Authenticated() {
		p, err := c.pending.Consume(ctx, c.tc.SessionID)
		if err != nil {
			return err
		}
		if p != nil {
			if comp, ok := companion.Lookup(p.Companion); ok {
				c.tc.Companion = comp.Name
			}
			if p.PendingMessage != nil {
				message = *p.PendingMessage
			}
		}
	}

	if err := c.open(ctx); err != nil {
		return err
	}
	if message != "" {
		c.ui.Message(model.Message{Sender: model.SenderUser, Text: message})
		c.send(ctx, message)
	}
	return nil
}

func (c *chat) open(ctx context.Context) error {
	opened, err := c.engine.Open(ctx, c.tc)
	if err != nil {
		return err
	}
	c.ui.Transcript(opened.Companion, opened.Messages)
	if opened.ContinuationID != "" {
		c.finish(ctx, "", &service.TurnResult{
			Status:         model.TurnStatusAwaitingAck,
			ContinuationID: opened.ContinuationID,
		})
	}
	return nil
}

func (c *chat) send(ctx context.Context, text string) {
	result, err := c.engine.Send(ctx, c.tc, text)
	if err != nil {
		c.report(ctx, err, text)
		return
	}
	if result.CrisisFlagged {
		c.ui.Warn("If you are in danger, please call your local emergency number or a crisis line now.")
	}
	c.finish(ctx, text, result)
}

// finish acknowledges a deferred turn, if any, and prints the reply.
func (c *chat) finish(ctx context.Context, text string, result *service.TurnResult) {
	var err error
	for result.Status == model.TurnStatusAwaitingAck {
		c.ui.Info("Setting up %s for you...", c.tc.Companion)
		result, err = c.engine.Continue(ctx, c.tc, result.ContinuationID)
		if err != nil {
			c.report(ctx, err, text)
			return
		}
	}

	switch result.Status {
	case model.TurnStatusDiscarded:
		return
	case model.TurnStatusGatewayFailed:
		log.Warn().Str("companion", c.tc.Companion).Msg("gateway turn failed")
	}
	if result.Reply != nil {
		c.ui.Message(*result.Reply)
	}
}

func (c *chat) report(ctx context.Context, err error, text string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.ui.Warn("%v", err)
		return
	}

	switch appErr.Code {
	case apperrors.ErrCodeLoginRequired:
		if _, rerr := c.pending.Remember(ctx, c.tc.SessionID, c.tc.Companion, &text); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to remember pending companion")
		}
		c.ui.Warn("Sign in to keep talking with %s: restart with -user <id>. Your message is kept for a few minutes.", c.tc.Companion)
	default:
		c.ui.Warn("%s", appErr.Message)
	}
}

func (c *chat) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit":
		return true, nil

	case "help":
		c.ui.Info("/companions  list companions")
		c.ui.Info("/switch NAME talk to another companion")
		c.ui.Info("/progress    show onboarding progress")
		c.ui.Info("/paywall     mark the onboarding paywall as passed")
		c.ui.Info("/upgrade     continue as a Pro user")
		c.ui.Info("/quit        leave")
		c.ui.Info("A number picks the matching option from the last reply.")

	case "companions":
		for _, comp := range companion.All() {
			c.ui.Info("%s: %s", comp.Name, comp.Philosophy)
		}

	case "switch":
		comp, ok := companion.Lookup(arg)
		if !ok {
			c.ui.Warn("No companion named %q", arg)
			return false, nil
		}
		c.tc.Companion = comp.Name
		return false, c.open(ctx)

	case "progress":
		progress, err := c.engine.Progress(ctx, c.tc)
		if err != nil {
			c.report(ctx, err, "")
			return false, nil
		}
		c.ui.Info("phase=%q onboarding=%t localQuestion=%d messages=%d",
			progress.Phase, progress.IsOnboarding, progress.LocalQuestionIndex, progress.UserMessageCount)

	case "paywall":
		if _, err := c.engine.MarkPaywallPassed(ctx, c.tc); err != nil {
			c.report(ctx, err, "")
			return false, nil
		}
		c.ui.Info("Onboarding complete. %s will continue in therapy mode.", c.tc.Companion)

	case "upgrade":
		c.tc.Entitlement.Pro = true
		c.ui.Info("Pro unlocked.")

	default:
		c.ui.Warn("Unknown command /%s, try /help", name)
	}
	return false, nil
}

func newGateway(cfg *config.Config) gateway.Gateway {
	if cfg.GatewayKind == config.GatewayKindOpenAI {
		return gateway.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Locale, cfg.GatewayTimeout())
	}
	return gateway.NewEdgeGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout())
}

// localToken stands in for a sign-in. The engine only needs a non-empty
// token; a signed one is issued when JWT_SECRET is set so the gateway can
// verify it.
func localToken(secret, userID string, pro bool) string {
	if secret == "" {
		return uuid.NewString()
	}
	token, err := middleware.IssueToken(secret, userID, pro, localTokenTTL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sign local token")
		return uuid.NewString()
	}
	return token
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "terminal"
	}
	return fmt.Sprintf("terminal-%s", host)
}
