// Package notify is the single channel all user-visible failures and
// confirmations travel through: a message plus a severity class.
package notify

import "sync"

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Notice is one user-facing notification.
type Notice struct {
	Severity Severity
	Message  string
}

// Notifier is the output port components publish notices through.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Broker is an in-process fan-out of notices to UI subscribers.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Notice]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan Notice]struct{}),
	}
}

// Subscribe returns a channel that receives every notice published after
// this call.
func (b *Broker) Subscribe() chan Notice {
	ch := make(chan Notice, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the subscriber set.
func (b *Broker) Unsubscribe(ch chan Notice) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Notify publishes a notice to all subscribers.
func (b *Broker) Notify(severity Severity, message string) {
	n := Notice{Severity: severity, Message: message}
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
