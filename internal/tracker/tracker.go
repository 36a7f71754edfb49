// Package tracker implements the Sent-Message Tracker (C2): a short-lived
// record of messages the gateway has sent out, keyed by (channel, external
// message id), so the Reaction Processor can map an incoming reaction event
// back to the OutgoingMessage it reacted to.
package tracker

import (
	"sync"
	"time"
)

// Record is what gets looked up when a reaction arrives.
type Record struct {
	MessageID     string // gateway's internal OutgoingMessage.MessageID
	InReplyTo     string // the IncomingMessage.MessageID it answered
	Channel       string
	UserID        string
	Question      string
	Answer        string
	Confidence    *float64
	RequiresHuman bool
	RoutingAction string
	DeliveryTarget string
	SentAt        time.Time
}

type entry struct {
	record  Record
	expires time.Time
}

// Tracker is a thread-safe TTL map. Lookup is lazy-evicting: an expired
// entry is treated as absent even before the sweep loop removes it.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	stop chan struct{}
	once sync.Once
}

func New(ttl time.Duration) *Tracker {
	t := &Tracker{
		entries: make(map[string]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

func key(channelID, externalMessageID string) string {
	return channelID + ":" + externalMessageID
}

// Track records that externalMessageID (the adapter's id for the message it
// just sent) corresponds to rec.
func (t *Tracker) Track(channelID, externalMessageID string, rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key(channelID, externalMessageID)] = entry{
		record:  rec,
		expires: time.Now().Add(t.ttl),
	}
}

// Lookup returns the record for a previously tracked message, or false if it
// was never tracked or has expired.
func (t *Tracker) Lookup(channelID, externalMessageID string) (Record, bool) {
	t.mu.RLock()
	e, ok := t.entries[key(channelID, externalMessageID)]
	t.mu.RUnlock()

	if !ok || time.Now().After(e.expires) {
		return Record{}, false
	}
	return e.record, true
}

// Remove discards a tracked message, e.g. once its reaction has been
// processed and no further reactions are expected.
func (t *Tracker) Remove(channelID, externalMessageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key(channelID, externalMessageID))
}

func (t *Tracker) Close() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if now.After(e.expires) {
			delete(t.entries, k)
		}
	}
}
