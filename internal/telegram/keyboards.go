package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data is "<kind>:<option index>" so it stays within Telegram's
// 64 byte limit whatever the catalog holds.
const (
	callbackLight   = "light"
	callbackSoil    = "soil"
	callbackWatered = "watered"
	callbackSymptom = "sym"
	callbackChanges = "changes"
	callbackSave    = "save"
	callbackDiscard = "discard"

	symptomsDone = "done"
	changesSkip  = "skip"
)

func optionKeyboard(kind string, options []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for i, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, fmt.Sprintf("%s:%d", kind, i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// symptomKeyboard lays symptoms out two per row and marks the selected ones.
func symptomKeyboard(options, selected []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, opt := range options {
		label := opt
		if slices.Contains(selected, opt) {
			label = "✓ " + opt
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", callbackSymptom, i)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Done", callbackSymptom+":"+symptomsDone),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func saveKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Save plant", callbackSave),
		tgbotapi.NewInlineKeyboardButtonData("Discard", callbackDiscard),
	))
}

func parseCallback(data string) (kind, value string) {
	kind, value, _ = strings.Cut(data, ":")
	return kind, value
}

// option resolves a callback index against the catalog list.
func option(options []string, value string) (string, bool) {
	i, err := strconv.Atoi(value)
	if err != nil || i < 0 || i >= len(options) {
		return "", false
	}
	return options[i], true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		b.answer(cb, "")
		return
	}
	chatID := cb.Message.Chat.ID
	chat := b.state.Get(chatID)
	kind, value := parseCallback(cb.Data)

	expected := map[string]ChatState{
		callbackLight:   StateAwaitingLight,
		callbackSoil:    StateAwaitingSoil,
		callbackWatered: StateAwaitingWatered,
		callbackSymptom: StateAwaitingSymptoms,
		callbackChanges: StateAwaitingChanges,
		callbackSave:    StateAwaitingSave,
		callbackDiscard: StateAwaitingSave,
	}
	state, known := expected[kind]
	if !known || chat.State != state {
		b.answer(cb, "This question has expired. Send a new photo to start again.")
		return
	}

	switch kind {
	case callbackLight:
		opt, ok := option(b.catalog.Light, value)
		if !ok {
			b.answer(cb, "Unknown option")
			return
		}
		chat.Questionnaire.LightCondition = opt
		chat.State = StateAwaitingSoil
		b.state.Set(chatID, chat)
		b.answer(cb, opt)
		b.sendKeyboard(chatID, "How does the soil feel?", optionKeyboard(callbackSoil, b.catalog.Soil))

	case callbackSoil:
		opt, ok := option(b.catalog.Soil, value)
		if !ok {
			b.answer(cb, "Unknown option")
			return
		}
		chat.Questionnaire.SoilCondition = opt
		chat.State = StateAwaitingWatered
		b.state.Set(chatID, chat)
		b.answer(cb, opt)
		b.sendKeyboard(chatID, "When was it last watered?", optionKeyboard(callbackWatered, b.catalog.LastWatered))

	case callbackWatered:
		opt, ok := option(b.catalog.LastWatered, value)
		if !ok {
			b.answer(cb, "Unknown option")
			return
		}
		chat.Questionnaire.LastWatered = opt
		chat.State = StateAwaitingSymptoms
		b.state.Set(chatID, chat)
		b.answer(cb, opt)
		b.sendKeyboard(chatID, "Which symptoms do you see? Tap all that apply, then Done.",
			symptomKeyboard(b.catalog.Symptoms, nil))

	case callbackSymptom:
		if value == symptomsDone {
			chat.State = StateAwaitingChanges
			b.state.Set(chatID, chat)
			b.answer(cb, "")
			skip := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Skip", callbackChanges+":"+changesSkip),
			))
			b.sendKeyboard(chatID, "Any recent changes, like repotting or a new spot? Reply with a short note or tap Skip.", skip)
			return
		}
		opt, ok := option(b.catalog.Symptoms, value)
		if !ok {
			b.answer(cb, "Unknown option")
			return
		}
		chat.Questionnaire.Symptoms = toggle(chat.Questionnaire.Symptoms, opt)
		b.state.Set(chatID, chat)
		b.answer(cb, "")
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID,
			symptomKeyboard(b.catalog.Symptoms, chat.Questionnaire.Symptoms))
		if _, err := b.api.Request(edit); err != nil {
			b.log.Warn("update symptom keyboard", "err", err)
		}

	case callbackChanges:
		b.answer(cb, "")
		b.runDiagnosis(ctx, chatID, chat)

	case callbackSave:
		b.answer(cb, "")
		b.savePlant(ctx, chatID, chat)

	case callbackDiscard:
		b.state.Reset(chatID)
		b.answer(cb, "Discarded")
		b.sendText(chatID, "Discarded. Send another photo whenever you like.")
	}
}

func toggle(list []string, item string) []string {
	if i := slices.Index(list, item); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return append(list, item)
}

func (b *Bot) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}
