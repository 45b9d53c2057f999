package telegram

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Nazarious-ucu/weather-forecast-bot/internal/models"
	tele "gopkg.in/telebot.v4"
)

const (
	prefixEdit   = "edit"
	prefixDelete = "delete"
	prefixCity   = "city"
	prefixHelp   = "help"

	// Telegram rejects callback data longer than this.
	maxCallbackData = 64
)

func callbackData(prefix, value string) string {
	return prefix + ":" + value
}

func commandsKeyboard() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.Reply(
		rm.Row(rm.Text("/start"), rm.Text("/set")),
		rm.Row(rm.Text("/list"), rm.Text("/edit")),
		rm.Row(rm.Text("/delete"), rm.Text("/clear")),
		rm.Row(rm.Text("/forecast"), rm.Text("/help")),
	)
	return rm
}

func helpKeyboard() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(helpOrder))
	for _, cmd := range helpOrder {
		rows = append(rows, rm.Row(tele.Btn{Text: "/" + cmd, Data: callbackData(prefixHelp, cmd)}))
	}
	rm.Inline(rows...)
	return rm
}

func subscriptionLabel(sub models.Subscription) string {
	return fmt.Sprintf(textSubscriptionRow, sub.ID, sub.NotifyAt, sub.City)
}

func subscriptionsKeyboard(prefix string, subs []models.Subscription) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, rm.Row(tele.Btn{
			Text: subscriptionLabel(sub),
			Data: callbackData(prefix, strconv.FormatInt(sub.ID, 10)),
		}))
	}
	rm.Inline(rows...)
	return rm
}

// citiesKeyboard has one button per city. Cities whose callback data would be
// too long are left out; the user can still type them.
func citiesKeyboard(cities []string) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(cities))
	for _, city := range cities {
		data := callbackData(prefixCity, city)
		if len(data) > maxCallbackData {
			continue
		}
		rows = append(rows, rm.Row(tele.Btn{Text: city, Data: data}))
	}
	rm.Inline(rows...)
	return rm
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return time.UTC.String()
	}
	return loc.String()
}
