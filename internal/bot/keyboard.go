package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeclock/internal/models"
	"timeclock/internal/timetrack"
)

const (
	btnClockIn  = "▶️ Clock in"
	btnClockOut = "⏹ Clock out"
	btnLunch    = "🍽 Start lunch"
	btnResume   = "↩️ Resume shift"
	btnStatus   = "📊 Status"
	btnHistory  = "📜 History"
)

var actionButtons = map[models.EventKind]string{
	models.KindClockIn:     btnClockIn,
	models.KindClockOut:    btnClockOut,
	models.KindStartLunch:  btnLunch,
	models.KindResumeShift: btnResume,
}

var buttonCommands = map[string]string{
	btnClockIn:  cmdIn,
	btnClockOut: cmdOut,
	btnLunch:    cmdLunch,
	btnResume:   cmdResume,
	btnStatus:   cmdStatus,
	btnHistory:  cmdHistory,
}

// actionKeyboard shows only the actions the gate enables.
func actionKeyboard(gate timetrack.Gate) tgbotapi.ReplyKeyboardMarkup {
	var actions []tgbotapi.KeyboardButton
	for _, kind := range gate.Enabled() {
		actions = append(actions, tgbotapi.NewKeyboardButton(actionButtons[kind]))
	}

	var rows [][]tgbotapi.KeyboardButton
	if len(actions) > 0 {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(actions...))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnStatus),
		tgbotapi.NewKeyboardButton(btnHistory),
	))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
