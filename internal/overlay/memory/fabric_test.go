package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

func openSession(t *testing.T, f *Fabric, cfg *overlay.Config) *Session {
	t.Helper()
	s, err := f.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receive(t *testing.T, sub overlay.Subscriber) overlay.Sample {
	t.Helper()
	select {
	case s, ok := <-sub.Stream():
		require.True(t, ok, "stream closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample")
		return overlay.Sample{}
	}
}

func TestWriteReachesRemoteSubscriber(t *testing.T) {
	ctx := context.Background()
	f := NewFabric()
	pub := openSession(t, f, nil)
	sub := openSession(t, f, nil)

	s, err := sub.DeclareSubscriber(ctx, "robot1/*", overlay.SubInfo{})
	require.NoError(t, err)

	rid, err := pub.DeclareResource(ctx, "robot1/Chatter")
	require.NoError(t, err)
	p, err := pub.DeclarePublisher(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, rid, p.Resource())

	require.NoError(t, pub.Write(ctx, rid, []byte("hello")))

	got := receive(t, s)
	assert.Equal(t, "robot1/Chatter", got.Key)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestLocalRouting(t *testing.T) {
	ctx := context.Background()
	f := NewFabric()

	for _, local := range []bool{false, true} {
		cfg := overlay.NewConfig()
		cfg.LocalRouting = local
		s := openSession(t, f, cfg)

		sub, err := s.DeclareSubscriber(ctx, "k", overlay.SubInfo{})
		require.NoError(t, err)
		rid, err := s.DeclareResource(ctx, "k")
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, rid, []byte{1}))

		assert.Equal(t, local, len(sub.Stream()) == 1, "local routing %v", local)
		require.NoError(t, sub.Close())
	}
}

func TestNonIntersectingKeyNotDelivered(t *testing.T) {
	ctx := context.Background()
	f := NewFabric()
	pub := openSession(t, f, nil)
	sub := openSession(t, f, nil)

	s, err := sub.DeclareSubscriber(ctx, "robot2/**", overlay.SubInfo{})
	require.NoError(t, err)
	rid, err := pub.DeclareResource(ctx, "robot1/Chatter")
	require.NoError(t, err)
	require.NoError(t, pub.Write(ctx, rid, []byte("x")))

	assert.Len(t, s.Stream(), 0)
}

func TestFullStreamDrops(t *testing.T) {
	ctx := context.Background()
	f := NewFabric()
	pub := openSession(t, f, nil)
	sub := openSession(t, f, nil)

	_, err := sub.DeclareSubscriber(ctx, "k", overlay.SubInfo{})
	require.NoError(t, err)
	rid, err := pub.DeclareResource(ctx, "k")
	require.NoError(t, err)

	for i := 0; i < DefaultStreamSize+3; i++ {
		require.NoError(t, pub.Write(ctx, rid, []byte{byte(i)}))
	}
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestUndeclaredResource(t *testing.T) {
	ctx := context.Background()
	s := openSession(t, NewFabric(), nil)

	rid, err := s.DeclareResource(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.UndeclareResource(ctx, rid))

	assert.ErrorIs(t, s.Write(ctx, rid, nil), overlay.ErrUnknownResource)
	assert.ErrorIs(t, s.UndeclareResource(ctx, rid), overlay.ErrUnknownResource)
	_, err = s.DeclarePublisher(ctx, rid)
	assert.ErrorIs(t, err, overlay.ErrUnknownResource)
}

func TestCloseEndsStreams(t *testing.T) {
	ctx := context.Background()
	f := NewFabric()
	other := openSession(t, f, nil)
	s, err := f.Open(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{s.ID()}, other.Info().Peers)

	sub, err := s.DeclareSubscriber(ctx, "k", overlay.SubInfo{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-sub.Stream()
	assert.False(t, ok)
	assert.Empty(t, other.Info().Peers)

	_, err = s.DeclareResource(ctx, "k")
	assert.ErrorIs(t, err, overlay.ErrSessionClosed)
	require.NoError(t, sub.Close())
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := NewFabric().Open(&overlay.Config{Mode: "router"})
	assert.ErrorIs(t, err, overlay.ErrInvalidMode)
}
