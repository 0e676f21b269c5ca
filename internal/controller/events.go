package controller

import (
	"sync"
	"time"

	"github.com/wpfleet/wpfleet/internal/api"
)

// Event types published by the registry.
const (
	EventSiteAdded   = "site.added"
	EventSiteUpdated = "site.updated"
	EventSiteDeleted = "site.deleted"
	EventSnapshot    = "snapshot"
)

const eventBuffer = 64

// SiteEvent describes one change of a site record. Site is absent for deletions.
type SiteEvent struct {
	Type   string         `json:"type"`
	SiteID string         `json:"site_id,omitempty"`
	Site   *api.SiteView  `json:"site,omitempty"`
	Sites  []api.SiteView `json:"sites,omitempty"`
	At     time.Time      `json:"at"`
}

// EventHub fans site events out to subscribers. Slow subscribers lose events
// rather than block the registry.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[chan SiteEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[chan SiteEvent]struct{})}
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel.
func (h *EventHub) Subscribe() (<-chan SiteEvent, func()) {
	ch := make(chan SiteEvent, eventBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *EventHub) Publish(event SiteEvent) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func siteEvent(eventType string, site api.Site) SiteEvent {
	view := site.View()
	return SiteEvent{Type: eventType, SiteID: site.ID, Site: &view}
}
