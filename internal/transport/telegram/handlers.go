package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/services/subscriptions"
	tele "gopkg.in/telebot.v4"
)

// input is what the handlers need from an update.
type input struct {
	UserID   int64
	ChatID   int64
	Text     string
	Payload  string
	Callback *tele.Callback
}

type handler func(ctx context.Context, in input) error

func inputFrom(c tele.Context) input {
	in := input{Text: c.Text(), Callback: c.Callback()}
	if u := c.Sender(); u != nil {
		in.UserID = u.ID
	}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	if msg := c.Message(); msg != nil {
		in.Payload = msg.Payload
	}
	if in.Callback != nil {
		in.Payload = in.Callback.Data
	}
	return in
}

// command adapts h to telebot. A technical failure still ends with a reply.
func (b *Bot) command(name string, h handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		b.handle(name, h, inputFrom(c))
		return nil
	}
}

func (b *Bot) handle(name string, h handler, in input) {
	ctx := b.baseContext()
	b.m.CommandsTotal.WithLabelValues(name).Inc()
	b.logger.Debug().Str("command", name).Int64("user_id", in.UserID).Msg("update received")

	if in.Callback != nil {
		if err := b.api.Respond(in.Callback); err != nil {
			b.logger.Warn().Err(err).Msg("failed to answer callback")
		}
	}

	if err := h(ctx, in); err != nil {
		b.logger.Error().Err(err).
			Str("command", name).
			Int64("user_id", in.UserID).
			Msg("command failed")
		b.m.TechnicalErrors.WithLabelValues("command_error", "critical").Inc()
		if err := b.send(ctx, in.ChatID, textInternalError, nil); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", in.ChatID).Msg("failed to report error to user")
		}
	}
}

func (b *Bot) reply(ctx context.Context, in input, text string) error {
	return b.send(ctx, in.ChatID, text, nil)
}

func (b *Bot) replyWith(ctx context.Context, in input, text string, markup *tele.ReplyMarkup) error {
	return b.send(ctx, in.ChatID, text, markup)
}

func (b *Bot) onStart(ctx context.Context, in input) error {
	return b.replyWith(ctx, in, textWelcome, commandsKeyboard())
}

func (b *Bot) onHelp(ctx context.Context, in input) error {
	return b.replyWith(ctx, in, textHelpMenu, helpKeyboard())
}

func (b *Bot) onSet(ctx context.Context, in input) error {
	if strings.TrimSpace(in.Payload) == "" {
		return b.reply(ctx, in, textSetUsage)
	}

	sub, err := b.svc.Set(ctx, in.UserID, in.Payload)
	if errors.Is(err, subscriptions.ErrInvalidInput) {
		return b.reply(ctx, in, textSetBadInput)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, in, fmt.Sprintf(textSetDone, sub.City, sub.NotifyAt, zoneName(b.svc.Location())))
}

func (b *Bot) onList(ctx context.Context, in input) error {
	subs, err := b.svc.List(ctx, in.UserID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return b.reply(ctx, in, textNoSubscriptions)
	}

	var sb strings.Builder
	sb.WriteString(textListHeader)
	for _, sub := range subs {
		sb.WriteString("\n")
		sb.WriteString(subscriptionLabel(sub))
	}
	return b.reply(ctx, in, sb.String())
}

func (b *Bot) onEdit(ctx context.Context, in input) error {
	subs, err := b.svc.List(ctx, in.UserID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return b.reply(ctx, in, textNoSubscriptions)
	}
	return b.replyWith(ctx, in, textEditChoose, subscriptionsKeyboard(prefixEdit, subs))
}

func (b *Bot) onDelete(ctx context.Context, in input) error {
	subs, err := b.svc.List(ctx, in.UserID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return b.reply(ctx, in, textNothingToDelete)
	}
	return b.replyWith(ctx, in, textDeleteChoose, subscriptionsKeyboard(prefixDelete, subs))
}

func (b *Bot) onClear(ctx context.Context, in input) error {
	n, err := b.svc.Clear(ctx, in.UserID)
	if err != nil {
		return err
	}
	if n == 0 {
		return b.reply(ctx, in, textClearNothing)
	}
	b.logger.Info().Int64("user_id", in.UserID).Int64("deleted", n).Msg("subscriptions cleared")
	return b.reply(ctx, in, textClearDone)
}

func (b *Bot) onForecast(ctx context.Context, in input) error {
	cities, err := b.svc.SuggestCities(ctx, in.UserID)
	if err != nil {
		return err
	}
	return b.replyWith(ctx, in, textForecastChoose, citiesKeyboard(cities))
}

func (b *Bot) onCancel(ctx context.Context, in input) error {
	if b.svc.CancelEdit(in.UserID) {
		return b.reply(ctx, in, textEditCanceled)
	}
	return b.reply(ctx, in, textNoEdit)
}

// onText handles anything that is not a known command: the answer to a pending
// edit, an unknown command, or a city name.
func (b *Bot) onText(ctx context.Context, in input) error {
	text := strings.TrimSpace(in.Text)

	if b.svc.HasPendingEdit(in.UserID) {
		return b.applyEdit(ctx, in, text)
	}
	if strings.HasPrefix(text, "/") {
		return b.reply(ctx, in, textUnknownCommand)
	}
	return b.sendForecast(ctx, in, text)
}

func (b *Bot) applyEdit(ctx context.Context, in input, text string) error {
	sub, err := b.svc.ApplyEdit(ctx, in.UserID, text)
	switch {
	case errors.Is(err, subscriptions.ErrInvalidInput):
		return b.reply(ctx, in, textEditBadInput)
	case errors.Is(err, subscriptions.ErrNotOwned):
		return b.reply(ctx, in, textNotFound)
	case errors.Is(err, subscriptions.ErrNoPendingEdit):
		return b.reply(ctx, in, textEditExpired)
	case err != nil:
		return err
	}
	return b.reply(ctx, in, fmt.Sprintf(textEditDone, sub.City, sub.NotifyAt, zoneName(b.svc.Location())))
}

func (b *Bot) sendForecast(ctx context.Context, in input, city string) error {
	text, err := b.svc.Forecast(ctx, in.UserID, city)
	switch {
	case errors.Is(err, subscriptions.ErrInvalidInput):
		return b.reply(ctx, in, textBadCity)
	case errors.Is(err, subscriptions.ErrForecastUnavailable):
		b.m.ForecastsSent.WithLabelValues("unavailable").Inc()
		return b.reply(ctx, in, text)
	case err != nil:
		return err
	}
	b.m.ForecastsSent.WithLabelValues("forecast").Inc()
	return b.reply(ctx, in, text)
}

func (b *Bot) onCallback(ctx context.Context, in input) error {
	prefix, value, _ := strings.Cut(in.Payload, ":")

	switch prefix {
	case prefixHelp:
		text, ok := helpTexts[value]
		if !ok {
			text = textUnknownHelp
		}
		return b.reply(ctx, in, text)
	case prefixCity:
		return b.sendForecast(ctx, in, value)
	case prefixEdit, prefixDelete:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return b.reply(ctx, in, textNotFound)
		}
		if prefix == prefixEdit {
			return b.selectForEdit(ctx, in, id)
		}
		return b.deleteOne(ctx, in, id)
	default:
		b.logger.Warn().Str("data", in.Payload).Int64("user_id", in.UserID).Msg("unknown callback")
		return b.reply(ctx, in, textUnknownCommand)
	}
}

func (b *Bot) selectForEdit(ctx context.Context, in input, id int64) error {
	err := b.svc.BeginEdit(ctx, in.UserID, id)
	if errors.Is(err, subscriptions.ErrNotOwned) {
		return b.reply(ctx, in, textNotFound)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, in, textEditPrompt)
}

func (b *Bot) deleteOne(ctx context.Context, in input, id int64) error {
	err := b.svc.Delete(ctx, in.UserID, id)
	if errors.Is(err, subscriptions.ErrNotOwned) {
		return b.reply(ctx, in, textNotFound)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, in, fmt.Sprintf(textDeleteDone, id))
}
