package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/connmgr"
	"github.com/DoyleJ11/lab-whiteboard/internal/hub"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemory()
	logger := zaptest.NewLogger(t)
	h := hub.NewHub(ctx, hub.WithStore(mem), hub.WithLogger(logger))
	srv := httptest.NewServer(SetupRoutes(h, Options{Logger: logger}))
	t.Cleanup(srv.Close)
	return srv, mem
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res.StatusCode
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), code)
}

func TestColorFor_Stable(t *testing.T) {
	assert.Equal(t, ColorFor("user-1"), ColorFor("user-1"))
	assert.Contains(t, Palette, ColorFor("user-2"))
}

func TestCreateThenJoin(t *testing.T) {
	srv, mem := newServer(t)

	var created types.CreateRoomResponse
	status := postJSON(t, srv.URL+"/api/room/create", types.CreateRoomRequest{RoomName: "Chemie 10b"}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, created.Success)

	stored, err := mem.GetRoom(context.Background(), created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "Chemie 10b", stored.Name)

	var joined types.JoinRoomResponse
	status = postJSON(t, srv.URL+"/api/room/join", types.JoinRoomRequest{RoomID: created.RoomID, Username: "Ada"}, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, joined.Success)
	assert.NotEmpty(t, joined.UserID)
	assert.Contains(t, Palette, joined.UserColor)
	require.NotNil(t, joined.RoomState)
	assert.Equal(t, types.EmptyState(), *joined.RoomState)
}

func TestJoin_Rejections(t *testing.T) {
	srv, _ := newServer(t)

	var resp types.JoinRoomResponse
	status := postJSON(t, srv.URL+"/api/room/join", types.JoinRoomRequest{RoomID: "NOPE00", Username: "Ada"}, &resp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "room not found", resp.Error)

	resp = types.JoinRoomResponse{}
	status = postJSON(t, srv.URL+"/api/room/join", types.JoinRoomRequest{RoomID: "NOPE00"}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
}

func TestCreate_RequiresName(t *testing.T) {
	srv, _ := newServer(t)
	var resp types.CreateRoomResponse
	status := postJSON(t, srv.URL+"/api/room/create", types.CreateRoomRequest{RoomName: "  "}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWebsocket_JoinAndRelay(t *testing.T) {
	srv, mem := newServer(t)
	require.NoError(t, mem.CreateRoom(context.Background(), "AB12CD", "lab"))

	dialer := connmgr.NewWebsocketDialer(time.Second)
	url := connmgr.RoomURL(srv.URL, "AB12CD")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := dialer.Dial(ctx, url)
	require.NoError(t, err)
	defer a.Close()
	b, err := dialer.Dial(ctx, url)
	require.NoError(t, err)
	defer b.Close()

	write := func(c connmgr.Conn, m types.ClientMessage) {
		data, err := types.Encode(m)
		require.NoError(t, err)
		require.NoError(t, c.Write(ctx, data))
	}
	read := func(c connmgr.Conn) types.ServerMessage {
		data, err := c.Read(ctx)
		require.NoError(t, err)
		m, err := types.DecodeServer(data)
		require.NoError(t, err)
		return m
	}

	write(a, types.Join{Username: "Ada", UserID: "u1", Color: "#2563eb"})
	assert.Equal(t, types.KindUsersList, read(a).Kind())

	write(b, types.Join{Username: "Grace", UserID: "u2", Color: "#dc2626"})
	usersB, ok := read(b).(types.UsersList)
	require.True(t, ok)
	assert.Len(t, usersB.Users, 2)
	assert.Equal(t, types.UserJoined{User: types.Participant{UserID: "u2", Username: "Grace", Color: "#dc2626"}}, read(a))

	st := types.State{Items: []types.Item{{ID: 1, Type: "becherglas", X: 0.5, Y: 0.5, Scale: 1}}, Connections: []types.Connection{}}
	write(b, types.StateUpdate{State: st})
	assert.Equal(t, types.StateUpdate{State: st}, read(a))

	require.Eventually(t, func() bool {
		r, err := mem.GetRoom(context.Background(), "AB12CD")
		return err == nil && len(r.State.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// late REST join sees the live scene
	var joined types.JoinRoomResponse
	postJSON(t, srv.URL+"/api/room/join", types.JoinRoomRequest{RoomID: "ab12cd", Username: "Linus"}, &joined)
	require.NotNil(t, joined.RoomState)
	assert.Equal(t, st, *joined.RoomState)

	require.NoError(t, b.Close())
	assert.Equal(t, types.UserLeft{UserID: "u2"}, read(a))
}
