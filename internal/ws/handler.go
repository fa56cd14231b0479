// Package ws serves the room channel at /ws/{room_id}.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/hub"
	"github.com/DoyleJ11/lab-whiteboard/internal/room"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 4 << 20
	outboxSize   = 32

	attachAttempts = 3
)

type Options struct {
	// OriginPatterns are passed to websocket.Accept. Empty means same
	// origin only.
	OriginPatterns []string
	Logger         *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept failed", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		clientID := ksuid.New().String()
		log := logger.With(zap.String("room_id", roomID), zap.String("client_id", clientID))

		out := make(chan types.ServerMessage, outboxSize)
		rm, err := attach(r.Context(), h, roomID, clientID, out)
		if err != nil {
			log.Warn("attach failed", zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "room unavailable")
			return
		}
		log.Debug("client connected")
		defer rm.Post(context.Background(), room.Leave{ClientID: clientID})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			for msg := range out {
				payload, err := types.Encode(msg)
				if err != nil {
					log.Error("encode frame", zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			}
			// The room closed our outbox: we were dropped or it stopped.
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client closed")
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			msg, err := types.DecodeClient(data)
			if err != nil {
				log.Warn("discarding client frame", zap.Error(err))
				continue
			}
			if !rm.Post(ctx, room.FromClient{ClientID: clientID, Msg: msg}) {
				return
			}
		}
	}
}

// attach registers the client with the room. A room that began to stop
// between lookup and attach refuses it, and the lookup is repeated.
func attach(ctx context.Context, h *hub.Hub, roomID, clientID string, out chan types.ServerMessage) (*room.Room, error) {
	for attempt := 0; attempt < attachAttempts; attempt++ {
		rm, err := h.Ensure(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if rm.Attach(clientID, out) {
			return rm, nil
		}
	}
	return nil, errors.New("room stopped during attach")
}
