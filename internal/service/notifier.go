package service

import (
	"time"

	"mission_rewards/internal/domain"
)

// Notifier pushes events to a wallet's live connections. Delivery is best
// effort; a wallet without connections simply drops the event.
type Notifier interface {
	Publish(wallet string, ev domain.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, domain.Event) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func event(typ string, payload interface{}, at time.Time) domain.Event {
	return domain.Event{Type: typ, Payload: payload, At: at}
}
