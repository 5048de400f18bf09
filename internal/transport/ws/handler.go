package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/auth"
	"github.com/vedran77/pulse-relay/internal/service"
	"nhooyr.io/websocket"
)

// UserSync makes sure the verified identity exists as a user row.
type UserSync interface {
	Ensure(ctx context.Context, userID uuid.UUID, username string) error
}

type Options struct {
	PingInterval time.Duration
	SendBuffer   int
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers)
// or an Authorization header. Identity is proven before the upgrade; a
// rejected connection is never registered.
func ServeWS(registry *Registry, verifier *auth.Verifier, users UserSync, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := authenticate(r, verifier)
		if err != nil {
			log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("ws: connection rejected")
			http.Error(w, service.ErrConnectionRejected.Error(), http.StatusUnauthorized)
			return
		}
		if err := users.Ensure(r.Context(), identity.UserID, identity.Username); err != nil {
			log.Error().Err(err).Str("user_id", identity.UserID.String()).Msg("ws: user sync failed")
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Allow any origin (dev mode)
		})
		if err != nil {
			log.Warn().Err(err).Msg("ws: accept error")
			return
		}

		client := NewClient(registry, conn, opts.SendBuffer)
		client.Authenticate(identity)

		ctx := r.Context()
		if err := registry.Attach(ctx, client); err != nil {
			log.Error().Err(err).Str("user_id", identity.UserID.String()).Msg("ws: attach failed")
			conn.Close(websocket.StatusInternalError, "attach failed")
			return
		}

		go client.WritePump(ctx, opts.PingInterval)
		client.ReadPump(ctx)
	}
}

func authenticate(r *http.Request, verifier *auth.Verifier) (*auth.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("Authorization"))
	}
	if token == "" {
		return nil, errors.Join(service.ErrConnectionRejected, auth.ErrInvalidToken)
	}
	identity, err := verifier.Verify(token)
	if err != nil {
		return nil, errors.Join(service.ErrConnectionRejected, err)
	}
	return identity, nil
}
