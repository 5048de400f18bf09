package ws

import (
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/service"
)

// Publish implements service.Publisher. The frame is encoded once and
// shared by every connection in target.
func (r *Registry) Publish(event service.LiveEvent, payload any, target service.Target) {
	room := ""
	if len(target.Rooms) == 1 {
		room = target.Rooms[0]
	}
	frame, err := encodeEvent(string(event), room, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("ws notifier: marshal error")
		return
	}
	n := r.Deliver(frame, target.Rooms, target.Users, nil)
	log.Debug().Str("event", string(event)).Int("connections", n).Msg("ws notifier: published")
}

var _ service.Publisher = (*Registry)(nil)
