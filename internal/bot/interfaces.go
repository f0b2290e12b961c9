package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeclock/internal/models"
	"timeclock/internal/service"
	"timeclock/internal/timetrack"
)

// ClockService is the part of the orchestrator the bot drives.
type ClockService interface {
	Record(ctx context.Context, userID string, kind models.EventKind, at time.Time) (*service.ActionResult, error)
	GetCurrentStatus(ctx context.Context, userID string, now time.Time) (*service.Status, error)
	GetUserSessions(ctx context.Context, userID string, q service.SessionQuery) (*service.SessionPage, error)
	Policy() timetrack.Policy
}

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}
