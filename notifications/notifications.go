package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"ctcbalance/storage"
)

type Category int

const (
	RUN_OK Category = iota + 1
	RUN_FAIL
)

type Notifier interface {
	Send(ctx context.Context, msg string) error
	IsEnabled() bool
}

type NotificationHandler struct {
	notifiers map[string]Notifier
}

func NewHandler(telegram TelegramConfig) *NotificationHandler {

	n := &NotificationHandler{
		notifiers: make(map[string]Notifier, 1),
	}

	if telegram.Enabled {
		n.notifiers["telegram"] = NewTelegram(telegram)
	}

	return n
}

// SendNotification delivers msg to every enabled notifier. Failures are logged;
// a run never fails because a message could not be sent.
func (n *NotificationHandler) SendNotification(ctx context.Context, msg string, category Category) {

	for name, notifier := range n.notifiers {

		if !notifier.IsEnabled() {
			continue
		}

		if err := notifier.Send(ctx, msg); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"Notifier": name, "Category": category,
			}).Error("Unable to send notification")
		}
	}
}

// RunMessage is the one line summary sent after a tracking run
func RunMessage(network string, run storage.RunSummary, latestDate string, latestTotal float64) string {

	methods := make([]string, 0, len(run.Methods))
	for m, count := range run.Methods {
		methods = append(methods, fmt.Sprintf("%s=%d", m, count))
	}
	sort.Strings(methods)

	msg := fmt.Sprintf("ctcbalance %s: %d accounts, %d dates, head #%s, total %s CTC on %s",
		network, run.Accounts, run.Dates, humanize.Comma(int64(run.Head)),
		humanize.CommafWithDigits(latestTotal, 1), latestDate)

	if len(methods) > 0 {
		msg += " (rewards " + strings.Join(methods, " ") + ")"
	}

	if run.Failed > 0 {
		msg += fmt.Sprintf(", %d reward windows failed", run.Failed)
	}

	return msg
}
