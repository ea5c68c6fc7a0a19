package communicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiscale/muscle3-sub001/pkg/peers"
	"github.com/multiscale/muscle3-sub001/pkg/postoffice"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transport/mem"
)

type instance struct {
	comm *Communicator
	po   *postoffice.PostOffice
}

// model wires macro.out -> micro.in with three micro instances. Only macro
// serves, since only macro sends.
func model(t *testing.T) (macro *instance, micro []*instance) {
	t.Helper()
	tr := mem.New()
	set := transport.NewSet(tr)
	c, err := ref.ParseConduit("macro.out -> micro.in")
	require.NoError(t, err)
	conduits := []ref.Conduit{c}
	dims := peers.Dims{ref.MustParse("macro"): nil, ref.MustParse("micro"): {3}}

	macroPO := postoffice.New()
	srv, err := transport.NewServer(context.Background(), tr, nil, postoffice.NewHandler(macroPO))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	locs := peers.Locations{ref.MustParse("macro"): {srv.Location()}}

	pm, err := peers.NewManager(ref.MustParse("macro"), nil, conduits, dims, locs)
	require.NoError(t, err)
	pool := transport.NewClientPool(set)
	t.Cleanup(func() { _ = pool.Close() })
	macro = &instance{comm: New(pm, macroPO, pool), po: macroPO}

	for i := 0; i < 3; i++ {
		pm, err := peers.NewManager(ref.MustParse("micro"), []int{i}, conduits, dims, locs)
		require.NoError(t, err)
		po := postoffice.New()
		pool := transport.NewClientPool(set)
		t.Cleanup(func() { _ = pool.Close() })
		micro = append(micro, &instance{comm: New(pm, po, pool), po: po})
	}
	return macro, micro
}

func TestScatterToReplicatedInstances(t *testing.T) {
	macro, micro := model(t)
	macro.comm.SetPortLength("out", 3)
	next := 2.0
	for i := 0; i < 3; i++ {
		err := macro.comm.Send("out", Message{
			Timestamp:     1.0,
			NextTimestamp: &next,
			Data:          []byte{byte(i)},
			Settings:      map[string]any{"step": "a"},
		}, i)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 2; i >= 0; i-- {
		m, err := micro[i].comm.Receive(ctx, "in")
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, m.Data)
		assert.Equal(t, 1.0, m.Timestamp)
		require.NotNil(t, m.NextTimestamp)
		assert.Equal(t, 2.0, *m.NextTimestamp)
		assert.Equal(t, "macro.out["+string(rune('0'+i))+"]", m.Sender.String())
		require.NotNil(t, m.PortLength)
		assert.Equal(t, 3, *m.PortLength)
		assert.Equal(t, "a", m.Settings["step"])
	}
	assert.NoError(t, macro.comm.Shutdown(ctx))
}

func TestReceiveWaitsForSend(t *testing.T) {
	macro, micro := model(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Message, 1)
	go func() {
		m, err := micro[1].comm.Receive(ctx, "in")
		assert.NoError(t, err)
		got <- m
	}()
	require.Eventually(t, func() bool { return macro.po.Stats().Pending == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, macro.comm.Send("out", Message{Timestamp: 0.5, Data: []byte("x")}, 1))
	select {
	case m := <-got:
		assert.Equal(t, "x", string(m.Data))
		assert.Nil(t, m.NextTimestamp)
		assert.Nil(t, m.PortLength)
		assert.Empty(t, m.Settings)
	case <-ctx.Done():
		t.Fatal("receive never returned")
	}
}

func TestMessageNumbersPerSlot(t *testing.T) {
	macro, micro := model(t)
	for n := 0; n < 3; n++ {
		require.NoError(t, macro.comm.Send("out", Message{Data: []byte{byte(n)}}, 0))
	}
	require.NoError(t, macro.comm.Send("out", Message{}, 2))

	ctx := context.Background()
	for n := 0; n < 3; n++ {
		m, err := micro[0].comm.Receive(ctx, "in")
		require.NoError(t, err)
		assert.Equal(t, n, m.MessageNumber)
		assert.Equal(t, []byte{byte(n)}, m.Data)
	}
	m, err := micro[2].comm.Receive(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 0, m.MessageNumber)
}

func TestUnconnectedPorts(t *testing.T) {
	macro, micro := model(t)
	assert.NoError(t, macro.comm.Send("nowhere", Message{Data: []byte("x")}))
	assert.Equal(t, 0, macro.po.Stats().Outboxes)

	_, err := micro[0].comm.Receive(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestShutdownWaitsForPull(t *testing.T) {
	macro, micro := model(t)
	require.NoError(t, macro.comm.Send("out", Message{Data: []byte("last")}, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, macro.comm.Shutdown(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- macro.comm.Shutdown(context.Background()) }()
	_, err := micro[0].comm.Receive(context.Background(), "in")
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return after the last pull")
	}
}
