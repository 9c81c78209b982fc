package mailbox

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/simerr"
)

func TestPutThenGetDeliversBody(t *testing.T) {
	clk := clock.New()
	sys := NewSystem(clk)
	defer sys.Close()

	clk.Join()
	require.NoError(t, sys.Put("wms_mailbox", "controller", 128, []byte(`{"kind":"submit"}`)))
	env, err := sys.Get("wms_mailbox")
	require.NoError(t, err)
	assert.Equal(t, "controller", env.SenderID)
	assert.Equal(t, int64(128), env.SizeBytes)
	assert.JSONEq(t, `{"kind":"submit"}`, string(env.Body))
	clk.Leave()
}

func TestGetTimesOutWhenNothingArrives(t *testing.T) {
	clk := clock.New()
	sys := NewSystem(clk)
	defer sys.Close()

	clk.Join()
	_, err := sys.GetWithTimeout("empty_mailbox", 5)
	require.Error(t, err)
	assert.Equal(t, 5.0, clk.Now())
	clk.Leave()
}

// TestGetWaitsAcrossActors mirrors real usage: a receiver blocks on an
// empty mailbox while a sender actor, woken later by its own sleep,
// delivers the message before the receiver's timeout.
func TestGetWaitsAcrossActors(t *testing.T) {
	clk := clock.New()
	sys := NewSystem(clk)
	defer sys.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	var got Envelope
	var getErr error

	clk.Join()
	clk.Spawn(func() {
		defer wg.Done()
		clk.Sleep(2)
		_ = sys.Put("box", "sender", 64, []byte(`"hi"`))
		clk.Leave()
	})
	clk.Spawn(func() {
		defer wg.Done()
		got, getErr = sys.GetWithTimeout("box", 100)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.NoError(t, getErr)
	assert.Equal(t, "sender", got.SenderID)
	assert.Equal(t, 2.0, clk.Now())
}

func TestMarkDownFailsPendingGet(t *testing.T) {
	clk := clock.New()
	sys := NewSystem(clk)
	defer sys.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	var getErr error

	clk.Join()
	clk.Spawn(func() {
		defer wg.Done()
		clk.Sleep(1)
		sys.MarkDown("svc_mailbox")
		clk.Leave()
	})
	clk.Spawn(func() {
		defer wg.Done()
		_, getErr = sys.GetWithTimeout("svc_mailbox", 100)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.Error(t, getErr)
	assert.True(t, errors.Is(getErr, simerr.New(simerr.ServiceIsDown, "svc_mailbox")))
}

func TestMarkDownFailsFuturePut(t *testing.T) {
	clk := clock.New()
	sys := NewSystem(clk)
	defer sys.Close()

	clk.Join()
	sys.MarkDown("svc_mailbox")
	err := sys.Put("svc_mailbox", "someone", 16, []byte(`null`))
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.ServiceIsDown))
	clk.Leave()
}
