package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeclock/internal/service"
)

const (
	historyPageSize   = 7
	historyPagePrefix = "hist:"
)

// sendHistory renders one page of sessions. A non-zero messageID edits the
// message in place when the user pages through the history.
func (b *Bot) sendHistory(ctx context.Context, chatID int64, messageID int, userID string, page int) {
	result, err := b.service.GetUserSessions(ctx, userID, service.SessionQuery{Page: page, Limit: historyPageSize})
	if err != nil {
		b.reply(chatID, b.describeError(ctx, err))
		return
	}

	var message strings.Builder
	if result.Total == 0 {
		message.WriteString("No sessions recorded yet.")
	} else {
		fmt.Fprintf(&message, "Sessions, page %d of %d\n\n", result.Page, result.TotalPages)
		loc := b.location()
		for _, s := range result.Sessions {
			message.WriteString(formatSession(s, loc))
			message.WriteString("\n")
		}
	}

	var navButtons []tgbotapi.InlineKeyboardButton
	if result.Page > 1 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Newer", fmt.Sprintf("%s%d", historyPagePrefix, result.Page-1)))
	}
	if result.Page < result.TotalPages {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Older ➡️", fmt.Sprintf("%s%d", historyPagePrefix, result.Page+1)))
	}

	text := strings.TrimRight(message.String(), "\n")
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		if len(navButtons) > 0 {
			markup := tgbotapi.NewInlineKeyboardMarkup(navButtons)
			edit.ReplyMarkup = &markup
		}
		b.send(edit)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(navButtons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(navButtons)
	}
	b.send(msg)
}
