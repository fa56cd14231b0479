package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/httpapi"
	"github.com/DoyleJ11/lab-whiteboard/internal/hub"
	"github.com/DoyleJ11/lab-whiteboard/internal/interaction"
	"github.com/DoyleJ11/lab-whiteboard/internal/roomapi"
	"github.com/DoyleJ11/lab-whiteboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTwoSessionsThroughHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zaptest.NewLogger(t)
	h := hub.NewHub(ctx, hub.WithStore(store.NewMemory()), hub.WithLogger(logger))
	srv := httptest.NewServer(httpapi.SetupRoutes(h, httpapi.Options{Logger: logger}))
	defer srv.Close()

	api := roomapi.New(srv.URL, srv.Client(), logger)
	cfg := DefaultConfig()
	cfg.HubURL = srv.URL

	infoA, stA, err := CreateAndJoin(ctx, api, "Chemie 10b", "Ada", cfg.DefaultColor)
	require.NoError(t, err)
	a := New(cfg, infoA, stA, Deps{Logger: logger.Named("ada")})
	defer a.Close()
	require.NoError(t, a.Start(ctx))

	infoB, stB, err := Bootstrap(ctx, api, infoA.RoomID, "Grace", cfg.DefaultColor)
	require.NoError(t, err)
	b := New(cfg, infoB, stB, Deps{Logger: logger.Named("grace")})
	defer b.Close()
	require.NoError(t, b.Start(ctx))

	viewOf := func(s *Session) View {
		v, err := s.View(ctx)
		require.NoError(t, err)
		return v
	}

	require.Eventually(t, func() bool {
		return viewOf(a).Lifecycle == Connected && len(viewOf(b).Roster.Entries) == 2
	}, 5*time.Second, 10*time.Millisecond)

	a.SetCanvas(interaction.Canvas{Width: 800, Height: 600})
	a.SelectTool("erlenmeyerkolben")
	a.PointerDown(interaction.Pointer{X: 400, Y: 300, At: time.Now()})

	require.Eventually(t, func() bool {
		items := viewOf(b).Scene.Items
		return len(items) == 1 && items[0].Type == "erlenmeyerkolben"
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(viewOf(b).Roster.Badges) == 1
	}, 5*time.Second, 10*time.Millisecond)

	b.Clear()
	require.Eventually(t, func() bool { return len(viewOf(a).Scene.Items) == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return len(viewOf(a).Roster.Entries) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, viewOf(a).Roster.Entries[0].IsSelf)
}
