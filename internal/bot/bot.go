// Package bot lets users clock in and out from a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timeclock/internal/models"
	"timeclock/internal/service"
)

const (
	cmdStart   = "start"
	cmdHelp    = "help"
	cmdIn      = "in"
	cmdOut     = "out"
	cmdLunch   = "lunch"
	cmdResume  = "resume"
	cmdStatus  = "status"
	cmdHistory = "history"
)

var commandActions = map[string]models.EventKind{
	cmdIn:     models.KindClockIn,
	cmdOut:    models.KindClockOut,
	cmdLunch:  models.KindStartLunch,
	cmdResume: models.KindResumeShift,
}

const helpText = `Commands:
/in - clock in
/out - clock out
/lunch - start lunch
/resume - end lunch and resume the shift
/status - today's totals and available actions
/history - past sessions`

// Bot is a Telegram front end for the clock service.
type Bot struct {
	tg      telegramClient
	service ClockService
	logger  *zerolog.Logger
	now     func() time.Time
}

func New(token string, debug bool, svc ClockService, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, svc, logger)
}

// NewWithTelegramClient allows injecting a fake Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, svc ClockService, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, svc, logger)
}

func newBot(tg telegramClient, svc ClockService, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("clock service is nil")
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &Bot{tg: tg, service: svc, logger: &l, now: time.Now}, nil
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	defer b.tg.StopReceivingUpdates()
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Telegram bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			b.handleUpdate(l.WithContext(ctx), &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil && update.Message.From != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := userKey(msg.From.ID)
	chatID := msg.Chat.ID

	command := msg.Command()
	if command == "" {
		command = buttonCommands[strings.TrimSpace(msg.Text)]
	}

	if kind, ok := commandActions[command]; ok {
		b.handleAction(ctx, chatID, userID, kind)
		return
	}

	switch command {
	case cmdStart, cmdHelp:
		b.sendWithGate(ctx, chatID, userID, helpText)
	case cmdStatus:
		b.handleStatus(ctx, chatID, userID)
	case cmdHistory:
		b.sendHistory(ctx, chatID, 0, userID, 1)
	default:
		b.reply(chatID, "Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) handleAction(ctx context.Context, chatID int64, userID string, kind models.EventKind) {
	result, err := b.service.Record(ctx, userID, kind, b.now())
	if err != nil {
		b.sendWithGate(ctx, chatID, userID, b.describeError(ctx, err))
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatAction(result, b.location()))
	msg.ReplyMarkup = actionKeyboard(result.Gate)
	b.send(msg)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, userID string) {
	status, err := b.service.GetCurrentStatus(ctx, userID, b.now())
	if err != nil {
		b.reply(chatID, b.describeError(ctx, err))
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatStatus(status))
	msg.ReplyMarkup = actionKeyboard(status.Gate)
	b.send(msg)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to answer callback")
	}
	if cq.Message == nil {
		return
	}

	if rest, ok := strings.CutPrefix(cq.Data, historyPagePrefix); ok {
		page, err := strconv.Atoi(rest)
		if err != nil || page < 1 {
			return
		}
		b.sendHistory(ctx, cq.Message.Chat.ID, cq.Message.MessageID, userKey(cq.From.ID), page)
	}
}

// sendWithGate replies with text and refreshes the action keyboard.
func (b *Bot) sendWithGate(ctx context.Context, chatID int64, userID, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if status, err := b.service.GetCurrentStatus(ctx, userID, b.now()); err == nil {
		msg.ReplyMarkup = actionKeyboard(status.Gate)
	}
	b.send(msg)
}

func (b *Bot) describeError(ctx context.Context, err error) string {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return formatViolations(verr.Violations)
	case errors.Is(err, service.ErrNotFound):
		return "You have no open session. Send /in to clock in."
	case errors.Is(err, service.ErrConflict):
		return "Another action is being recorded for you. Please try again."
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Clock service failure")
		return "Something went wrong. Please try again later."
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send telegram message")
	}
}

func (b *Bot) location() *time.Location {
	if loc := b.service.Policy().Location; loc != nil {
		return loc
	}
	return time.UTC
}

func userKey(id int64) string {
	return "tg:" + strconv.FormatInt(id, 10)
}
