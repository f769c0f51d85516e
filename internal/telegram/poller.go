package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/scholarpost/paperbot/internal/bot"
)

// Handler is the inbound half consumed by the poller. Implementations must
// be safe for concurrent calls; per-user ordering is their concern.
type Handler interface {
	HandleText(ctx context.Context, msg bot.TextMessage)
	HandleButton(ctx context.Context, press bot.ButtonPress)
	HandleMembershipChange(ctx context.Context, change bot.MembershipChange)
}

// Poller long-polls Telegram for updates and fans them out to the handler,
// one goroutine per update. Ordering per user is provided downstream by the
// orchestrator's per-user serialization.
type Poller struct {
	api     *tgbotapi.BotAPI
	handler Handler
	logger  zerolog.Logger
	timeout int
}

// NewPoller creates a poller with the given long-poll timeout in seconds.
func NewPoller(api *tgbotapi.BotAPI, handler Handler, timeoutSeconds int, logger zerolog.Logger) *Poller {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Poller{
		api:     api,
		handler: handler,
		logger:  logger.With().Str("component", "poller").Logger(),
		timeout: timeoutSeconds,
	}
}

// Run polls until ctx is cancelled. Pending updates accumulated while the
// bot was down are dropped so a restart does not replay stale commands.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout

	updates := p.api.GetUpdatesChan(cfg)
	p.logger.Info().Str("bot", p.api.Self.UserName).Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			p.logger.Info().Msg("polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go p.route(ctx, update)
		}
	}
}

// route converts one Telegram update into an engine event.
func (p *Poller) route(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.Text != "":
		msg := update.Message
		p.handler.HandleText(ctx, bot.TextMessage{
			UserID: msg.From.ID,
			ChatID: msg.Chat.ID,
			Text:   msg.Text,
		})

	case update.CallbackQuery != nil:
		cb := update.CallbackQuery

		// Acknowledge immediately so the client stops its spinner even if
		// the handler takes a while.
		if _, err := p.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			p.logger.Debug().Err(err).Msg("callback ack failed")
		}

		if cb.Message == nil {
			return
		}
		p.handler.HandleButton(ctx, bot.ButtonPress{
			UserID:    cb.From.ID,
			ChatID:    cb.Message.Chat.ID,
			MessageID: int64(cb.Message.MessageID),
			ButtonID:  cb.Data,
		})

	case update.MyChatMember != nil:
		member := update.MyChatMember
		p.handler.HandleMembershipChange(ctx, bot.MembershipChange{
			UserID:    member.From.ID,
			NewStatus: member.NewChatMember.Status,
		})
	}
}
