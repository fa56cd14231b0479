// Package roomapi talks to the hub's room REST endpoints.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"go.uber.org/zap"
)

// ErrRejected is returned when the hub answers success=false.
var ErrRejected = errors.New("room request rejected")

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func New(baseURL string, hc *http.Client, logger *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

func (c *Client) CreateRoom(ctx context.Context, name string) (string, error) {
	var resp types.CreateRoomResponse
	if err := c.post(ctx, "/api/room/create", types.CreateRoomRequest{RoomName: name}, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.RoomID == "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	c.logger.Info("room created", zap.String("room_id", resp.RoomID), zap.String("name", name))
	return resp.RoomID, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID, username string) (types.JoinRoomResponse, error) {
	var resp types.JoinRoomResponse
	req := types.JoinRoomRequest{RoomID: roomID, Username: username}
	if err := c.post(ctx, "/api/room/join", req, &resp); err != nil {
		return types.JoinRoomResponse{}, err
	}
	if !resp.Success {
		return types.JoinRoomResponse{}, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	c.logger.Info("joined room", zap.String("room_id", roomID), zap.String("user_id", resp.UserID))
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	// Rejections come back as JSON with success=false, whatever the status.
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("post %s: status %d: %w", path, res.StatusCode, err)
	}
	return nil
}
