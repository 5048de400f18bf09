package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
)

// ScopeAuthorizer decides whether a connection may join a scope's room.
type ScopeAuthorizer interface {
	AuthorizeScope(ctx context.Context, userID uuid.UUID, scope domain.Scope, capability access.Capability) error
}

// ConversationLister finds the conversations a user takes part in.
type ConversationLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.PrivateConversation, error)
}

// PresenceTracker records whether a user has any live connection.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, userID uuid.UUID) error
	MarkOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// ContactLister finds who may see a user's presence.
type ContactLister interface {
	Contacts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

var (
	ErrNotAttached = errors.New("connection is not attached")
	ErrUserRoom    = errors.New("personal rooms are joined automatically")
)

// Registry tracks live connections and the rooms they are in. One RWMutex
// guards all three indexes; delivery only takes the read lock and never
// blocks on a connection.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	users   map[uuid.UUID]map[*Client]struct{}
	clients map[*Client]map[string]struct{}

	authz         ScopeAuthorizer
	conversations ConversationLister
	presence      PresenceTracker
	contacts      ContactLister
	now           func() time.Time

	// presenceMu guards presenceOf. Each entry serializes one user's
	// presence reports.
	presenceMu sync.Mutex
	presenceOf map[uuid.UUID]*presenceEntry

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewRegistry(authz ScopeAuthorizer, conversations ConversationLister) *Registry {
	return &Registry{
		rooms:         make(map[string]map[*Client]struct{}),
		users:         make(map[uuid.UUID]map[*Client]struct{}),
		clients:       make(map[*Client]map[string]struct{}),
		authz:         authz,
		conversations: conversations,
		presenceOf:    make(map[uuid.UUID]*presenceEntry),
		now:           time.Now,
	}
}

// SetPresence sets the presence tracker (optional dependency).
func (r *Registry) SetPresence(p PresenceTracker) {
	r.presence = p
}

// SetContacts sets who receives presence changes. Without it presence is
// recorded but not broadcast.
func (r *Registry) SetContacts(l ContactLister) {
	r.contacts = l
}

// Attach registers an authenticated connection, puts it in its user room and
// in the room of every open conversation the user takes part in.
func (r *Registry) Attach(ctx context.Context, c *Client) error {
	if c.State() != StateAuthenticated {
		return fmt.Errorf("attach in state %s", c.State())
	}

	convs, err := r.conversations.ListForUser(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	r.mu.Lock()
	conns, ok := r.users[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.users[c.userID] = conns
	}
	first := len(conns) == 0
	conns[c] = struct{}{}
	r.clients[c] = make(map[string]struct{})
	r.addLocked(c, domain.UserRoom(c.userID))
	for i := range convs {
		if convs[i].Retired() {
			continue
		}
		r.addLocked(c, convs[i].Scope().Room())
	}
	total := len(r.clients)
	r.mu.Unlock()

	c.setState(StateJoined)
	c.touch(r.now())
	log.Info().Str("user_id", c.userID.String()).Int("connections", total).Msg("ws: client attached")

	if first {
		r.syncPresence(ctx, c.userID)
	}
	return nil
}

// Join adds c to the room of a channel or conversation the user may read.
func (r *Registry) Join(ctx context.Context, c *Client, room string) error {
	scope, err := domain.ParseRoom(room)
	if err != nil {
		if isUserRoom(room) {
			return ErrUserRoom
		}
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	if err := r.authz.AuthorizeScope(ctx, c.userID, scope, access.CapRead); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return ErrNotAttached
	}
	r.addLocked(c, room)
	return nil
}

func (r *Registry) Leave(c *Client, room string) error {
	if isUserRoom(room) {
		return ErrUserRoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return ErrNotAttached
	}
	r.removeLocked(c, room)
	return nil
}

// Detach removes c from every room. The user goes offline with its last
// connection. Detaching twice is a no-op.
func (r *Registry) Detach(c *Client) {
	r.mu.Lock()
	rooms, ok := r.clients[c]
	if !ok {
		r.mu.Unlock()
		return
	}
	for room := range rooms {
		r.removeLocked(c, room)
	}
	delete(r.clients, c)

	last := false
	if conns, ok := r.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.users, c.userID)
			last = true
		}
	}
	total := len(r.clients)
	r.mu.Unlock()

	c.disconnect()
	log.Info().Str("user_id", c.userID.String()).Int("connections", total).Msg("ws: client detached")

	if last {
		r.syncPresence(context.Background(), c.userID)
	}
}

// CloseRoom evicts every connection from room. The connections stay attached.
func (r *Registry) CloseRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.rooms[room] {
		r.removeLocked(c, room)
	}
}

// SubscribeUser puts every connection of userID into room.
func (r *Registry) SubscribeUser(userID uuid.UUID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.users[userID] {
		r.addLocked(c, room)
	}
}

func (r *Registry) UnsubscribeUser(userID uuid.UUID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.users[userID] {
		r.removeLocked(c, room)
	}
}

// Deliver enqueues frame once on every connection in target. A connection
// whose buffer is full is dropped. It returns how many connections got it.
func (r *Registry) Deliver(frame []byte, rooms []string, users []uuid.UUID, exclude *uuid.UUID) int {
	sent, slow := r.offer(frame, rooms, users, exclude)
	r.dropSlow(slow)
	return sent
}

// offer enqueues like Deliver but hands back the connections that were full.
func (r *Registry) offer(frame []byte, rooms []string, users []uuid.UUID, exclude *uuid.UUID) (int, []*Client) {
	var slow []*Client
	sent := 0

	r.mu.RLock()
	seen := make(map[*Client]struct{})
	offer := func(c *Client) {
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		if exclude != nil && c.userID == *exclude {
			return
		}
		if c.enqueue(frame) {
			sent++
			return
		}
		slow = append(slow, c)
	}
	for _, room := range rooms {
		for c := range r.rooms[room] {
			offer(c)
		}
	}
	for _, userID := range users {
		for c := range r.users[userID] {
			offer(c)
		}
	}
	r.mu.RUnlock()

	r.delivered.Add(int64(sent))
	return sent, slow
}

func (r *Registry) dropSlow(slow []*Client) {
	for _, c := range slow {
		r.dropped.Add(1)
		log.Warn().Str("user_id", c.userID.String()).Msg("ws: dropping slow consumer")
		r.Detach(c)
		c.closeConn("slow consumer")
	}
}

// Sweep detaches connections with no activity since before now-idle.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.RLock()
	var stale []*Client
	for c := range r.clients {
		if c.LastSeen().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		log.Info().Str("user_id", c.userID.String()).Msg("ws: idle connection timed out")
		r.Detach(c)
		c.closeConn("idle timeout")
	}
	return len(stale)
}

// RunJanitor sweeps idle connections every interval until ctx ends.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				log.Debug().Int("swept", n).Msg("ws: janitor run")
			}
		}
	}
}

// Typing relays a typing indicator to the other users in room.
func (r *Registry) Typing(sender *Client, room string) error {
	r.mu.RLock()
	_, in := r.rooms[room][sender]
	r.mu.RUnlock()
	if !in {
		return fmt.Errorf("%w: not in room %s", domain.ErrForbidden, room)
	}

	frame, err := encodeEvent(EventTypeTyping, room, TypingPayload{UserID: sender.userID, Username: sender.username})
	if err != nil {
		return err
	}
	r.Deliver(frame, []string{room}, nil, &sender.userID)
	return nil
}

type Stats struct {
	Connections int   `json:"connections"`
	Users       int   `json:"users"`
	Rooms       int   `json:"rooms"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Connections: len(r.clients),
		Users:       len(r.users),
		Rooms:       len(r.rooms),
		Delivered:   r.delivered.Load(),
		Dropped:     r.dropped.Load(),
	}
}

// InRoom reports whether c is currently in room.
func (r *Registry) InRoom(c *Client, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][c]
	return ok
}

func (r *Registry) addLocked(c *Client, room string) {
	rooms, ok := r.clients[c]
	if !ok {
		return
	}
	rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (r *Registry) removeLocked(c *Client, room string) {
	delete(r.clients[c], room)
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

type presenceEntry struct {
	mu     sync.Mutex
	refs   int
	online bool
}

// syncPresence reports userID online or offline when that differs from what
// was last reported. Reports of one user never overlap, and each one reads
// the connection count after taking the user's entry, so a quick
// disconnect and reconnect cannot leave the tracker on the wrong side.
func (r *Registry) syncPresence(ctx context.Context, userID uuid.UUID) {
	r.presenceMu.Lock()
	e, ok := r.presenceOf[userID]
	if !ok {
		e = &presenceEntry{}
		r.presenceOf[userID] = e
	}
	e.refs++
	r.presenceMu.Unlock()

	var slow []*Client
	e.mu.Lock()
	r.mu.RLock()
	online := len(r.users[userID]) > 0
	r.mu.RUnlock()
	if online != e.online {
		e.online = online
		slow = r.presenceChanged(ctx, userID, online)
	}
	e.mu.Unlock()

	r.presenceMu.Lock()
	e.refs--
	if e.refs == 0 && !e.online {
		delete(r.presenceOf, userID)
	}
	r.presenceMu.Unlock()

	// Izbaci spore tek kad je entry otpusten
	r.dropSlow(slow)
}

// presenceChanged records the change and tells the user's contacts. It
// returns the connections too slow to take the frame.
func (r *Registry) presenceChanged(ctx context.Context, userID uuid.UUID, online bool) []*Client {
	payload := PresencePayload{UserID: userID, Status: "online"}
	if !online {
		at := r.now()
		payload.Status = "offline"
		payload.LastSeen = &at
	}
	if r.presence != nil {
		var err error
		if online {
			err = r.presence.MarkOnline(ctx, userID)
		} else {
			err = r.presence.MarkOffline(ctx, userID, *payload.LastSeen)
		}
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("ws: presence update failed")
		}
	}

	if r.contacts == nil {
		return nil
	}
	contacts, err := r.contacts.Contacts(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("ws: listing contacts failed")
		return nil
	}
	frame, err := encodeEvent(EventTypePresence, "", payload)
	if err != nil {
		return nil
	}
	_, slow := r.offer(frame, nil, contacts, &userID)
	return slow
}

func isUserRoom(room string) bool {
	return strings.HasPrefix(room, "user:")
}
