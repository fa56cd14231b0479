package scene

import (
	"math/rand"
	"testing"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	s := New()
	for i, id := range []int64{1, 2, 3} {
		require.NoError(t, s.Place(types.Item{ID: id, Type: "becherglas", X: 0.1 * float64(i+1), Y: 0.5}))
	}
	require.NoError(t, s.Connect(types.Connection{ID: 10, From: 1, To: 2}))
	require.NoError(t, s.Connect(types.Connection{ID: 11, From: 2, To: 3}))
	require.NoError(t, s.Connect(types.Connection{ID: 12, From: 3, To: 1, Type: types.StyleDashed}))
	return s
}

func TestDelete_CascadesExactlyReferencingConnections(t *testing.T) {
	s := newTestScene(t)

	removed, dropped, err := s.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed.ID)

	var droppedIDs []int64
	for _, c := range dropped {
		droppedIDs = append(droppedIDs, c.ID)
	}
	assert.ElementsMatch(t, []int64{10, 12}, droppedIDs)

	st := s.State()
	require.Len(t, st.Connections, 1)
	assert.Equal(t, int64(11), st.Connections[0].ID)
	assert.Len(t, st.Items, 2)
	assert.NoError(t, Validate(st))
}

func TestDelete_UnknownItem(t *testing.T) {
	s := newTestScene(t)
	_, _, err := s.Delete(99)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, 3, s.Len())
}

func TestConnect_Rules(t *testing.T) {
	cases := []struct {
		name    string
		conn    types.Connection
		wantErr error
	}{
		{name: "self connection", conn: types.Connection{ID: 20, From: 1, To: 1}, wantErr: ErrSelfConnection},
		{name: "missing end", conn: types.Connection{ID: 20, From: 1, To: 42}, wantErr: ErrItemNotFound},
		{name: "duplicate id", conn: types.Connection{ID: 10, From: 1, To: 3}, wantErr: ErrDuplicateID},
		{name: "bad style", conn: types.Connection{ID: 20, From: 1, To: 3, Type: "dotted"}, wantErr: ErrInvalidStyle},
		{name: "defaults to solid", conn: types.Connection{ID: 20, From: 1, To: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestScene(t)
			err := s.Connect(tc.conn)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			c, ok := s.Connection(tc.conn.ID)
			require.True(t, ok)
			assert.Equal(t, types.StyleSolid, c.Type)
		})
	}
}

func TestMove_ClampsToCanvas(t *testing.T) {
	s := newTestScene(t)

	it, err := s.Move(1, 1.3, -0.2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, it.X)
	assert.Equal(t, 0.0, it.Y)
}

func TestResize_AlwaysInRange(t *testing.T) {
	s := newTestScene(t)
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		it, err := s.Resize(2, (r.Float64()-0.5)*20)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, it.Scale, MinScale)
		assert.LessOrEqual(t, it.Scale, MaxScale)
	}
}

func TestRotate_QuarterTurns(t *testing.T) {
	s := newTestScene(t)
	want := []int{90, 180, 270, 0, 90}
	for _, w := range want {
		it, err := s.Rotate(3)
		require.NoError(t, err)
		assert.Equal(t, w, it.Rotation)
	}
}

func TestReferentialIntegrity_RandomMutations(t *testing.T) {
	s := New()
	r := rand.New(rand.NewSource(42))
	var next int64 = 1

	for step := 0; step < 1000; step++ {
		st := s.State()
		switch r.Intn(5) {
		case 0, 1:
			_ = s.Place(types.Item{ID: next, Type: "trichter", X: r.Float64(), Y: r.Float64()})
			next++
		case 2:
			if len(st.Items) >= 2 {
				a := st.Items[r.Intn(len(st.Items))].ID
				b := st.Items[r.Intn(len(st.Items))].ID
				_ = s.Connect(types.Connection{ID: next, From: a, To: b})
				next++
			}
		case 3:
			if len(st.Items) > 0 {
				_, _, err := s.Delete(st.Items[r.Intn(len(st.Items))].ID)
				require.NoError(t, err)
			}
		case 4:
			if len(st.Connections) > 0 {
				_, err := s.Disconnect(st.Connections[r.Intn(len(st.Connections))].ID)
				require.NoError(t, err)
			}
		}
		require.NoError(t, Validate(s.State()), "step %d", step)
		assert.Empty(t, s.Dangling())
	}
}

func TestReplace_IsIdempotentAndDetached(t *testing.T) {
	incoming := types.State{
		Items:       []types.Item{{ID: 5, Type: "stativ", X: 0.2, Y: 0.3, Scale: 1}},
		Connections: []types.Connection{},
	}

	s := New()
	s.Replace(incoming)
	once := s.State()
	s.Replace(incoming)
	assert.Equal(t, once, s.State())

	incoming.Items[0].X = 0.9
	it, _ := s.Item(5)
	assert.Equal(t, 0.2, it.X)
}

func TestResolved_SkipsDanglingConnections(t *testing.T) {
	s := FromState(types.State{
		Items: []types.Item{{ID: 1}, {ID: 2}},
		Connections: []types.Connection{
			{ID: 7, From: 1, To: 2},
			{ID: 8, From: 2, To: 99},
		},
	})

	resolved := s.Resolved()
	require.Len(t, resolved, 1)
	assert.Equal(t, int64(7), resolved[0].ID)
	require.Len(t, s.Dangling(), 1)
	assert.Error(t, Validate(s.State()))
}

func TestIDSource_MonotonicWithinSameMillisecond(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	ids := NewIDSource(clock)

	a := ids.Next()
	b := ids.Next()
	assert.Equal(t, int64(1_700_000_000_000), a)
	assert.Equal(t, a+1, b)

	ids.Observe(1_800_000_000_000)
	assert.Equal(t, int64(1_800_000_000_001), ids.Next())

	clock.Advance(time.Hour * 24 * 365 * 10)
	assert.Greater(t, ids.Next(), int64(1_800_000_000_001))
}
