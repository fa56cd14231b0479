package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/hub"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const (
	codeLength  = 6
	maxAttempts = 10
	maxBody     = 1 << 16
	storeWait   = 3 * time.Second
)

// Palette is the set of user colors handed out on join.
var Palette = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea",
	"#ea580c", "#0891b2", "#db2777", "#ca8a04",
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// ColorFor picks a stable palette color for a user id.
func ColorFor(userID string) string {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return Palette[f.Sum32()%uint32(len(Palette))]
}

type api struct {
	hub    *hub.Hub
	store  store.Store
	logger *zap.Logger
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRoomRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.CreateRoomResponse{Error: "bad json"})
		return
	}
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, types.CreateRoomResponse{Error: "room_name required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeWait)
	defer cancel()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, types.CreateRoomResponse{Error: "failed to generate code"})
			return
		}
		err = a.store.CreateRoom(ctx, code, name)
		if errors.Is(err, store.ErrRoomExists) {
			a.logger.Debug("collision on code, regenerating", zap.String("code", code))
			continue
		}
		if err != nil {
			a.logger.Error("create room", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, types.CreateRoomResponse{Error: "failed to create room"})
			return
		}

		a.logger.Info("room created", zap.String("room_id", code), zap.String("name", name))
		writeJSON(w, http.StatusCreated, types.CreateRoomResponse{Success: true, RoomID: code})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, types.CreateRoomResponse{Error: "no free room code"})
}

func (a *api) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRoomRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.JoinRoomResponse{Error: "bad json"})
		return
	}
	roomID := strings.ToUpper(strings.TrimSpace(req.RoomID))
	username := strings.TrimSpace(req.Username)
	if roomID == "" || username == "" {
		writeJSON(w, http.StatusBadRequest, types.JoinRoomResponse{Error: "room_id and username required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeWait)
	defer cancel()

	stored, err := a.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		writeJSON(w, http.StatusNotFound, types.JoinRoomResponse{Error: "room not found"})
		return
	}
	if err != nil {
		a.logger.Error("join room", zap.String("room_id", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.JoinRoomResponse{Error: "failed to load room"})
		return
	}

	// The live room is ahead of the store while a persist is in flight.
	state := stored.State
	if rm, err := a.hub.Lookup(ctx, roomID); err == nil && rm != nil {
		if v, ok := rm.Snapshot(ctx); ok {
			state = v.State
		}
	}

	userID := ksuid.New().String()
	a.logger.Info("user joining", zap.String("room_id", roomID), zap.String("user_id", userID), zap.String("username", username))
	writeJSON(w, http.StatusOK, types.JoinRoomResponse{
		Success:   true,
		UserID:    userID,
		UserColor: ColorFor(userID),
		RoomState: &state,
	})
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.hub.Rooms(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}{"ok", len(rooms)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
