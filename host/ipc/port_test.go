package ipc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversToPeer(t *testing.T) {
	hostPort, rendererPort := ipc.NewPair("host", "renderer")

	var got []string
	rendererPort.On("ping", func(_ ipc.Event, payload json.RawMessage) {
		var s string
		require.NoError(t, json.Unmarshal(payload, &s))
		got = append(got, s)
	})
	hostPort.On("ping", func(ipc.Event, json.RawMessage) {
		t.Fatal("a port never receives its own events")
	})

	require.NoError(t, hostPort.Send("ping", "hello"))
	require.Equal(t, []string{"hello"}, got)
}

func TestEventReplyGoesBack(t *testing.T) {
	hostPort, rendererPort := ipc.NewPair("host", "renderer")

	hostPort.On("mounted", func(e ipc.Event, _ json.RawMessage) {
		require.NoError(t, e.Send("welcome", map[string]string{"a": "b"}))
	})
	var reply json.RawMessage
	rendererPort.On("welcome", func(_ ipc.Event, payload json.RawMessage) {
		reply = payload
	})

	require.NoError(t, rendererPort.Send("mounted", nil))
	require.JSONEq(t, `{"a":"b"}`, string(reply))
}

func TestRemoveListeners(t *testing.T) {
	hostPort, rendererPort := ipc.NewPair("host", "renderer")

	calls := 0
	remove := hostPort.On("x", func(ipc.Event, json.RawMessage) { calls++ })
	hostPort.On("x", func(ipc.Event, json.RawMessage) { calls++ })
	require.Equal(t, 2, hostPort.ListenerCount("x"))

	remove()
	require.Equal(t, 1, hostPort.ListenerCount("x"))
	require.NoError(t, rendererPort.Send("x", nil))
	require.Equal(t, 1, calls)

	hostPort.RemoveAllListeners("x")
	require.Zero(t, hostPort.ListenerCount("x"))
	require.NoError(t, rendererPort.Send("x", nil))
	require.Equal(t, 1, calls)
}

func TestInvoke(t *testing.T) {
	hostPort, rendererPort := ipc.NewPair("host", "renderer")

	_, err := rendererPort.Invoke(context.Background(), "sum", nil)
	require.ErrorIs(t, err, ipc.ErrNoHandler)

	require.NoError(t, hostPort.Handle("sum", func(_ context.Context, _ ipc.Event, payload json.RawMessage) (any, error) {
		var in []int
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		total := 0
		for _, n := range in {
			total += n
		}
		return map[string]int{"total": total}, nil
	}))
	require.Error(t, hostPort.Handle("sum", nil))

	out, err := rendererPort.Invoke(context.Background(), "sum", []int{1, 2, 3})
	require.NoError(t, err)
	require.JSONEq(t, `{"total":6}`, string(out))

	hostPort.RemoveHandler("sum")
	_, err = rendererPort.Invoke(context.Background(), "sum", nil)
	require.ErrorIs(t, err, ipc.ErrNoHandler)
}
