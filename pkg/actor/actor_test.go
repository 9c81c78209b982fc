package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

func testHost() *model.Host { return &model.Host{Name: "host1", Cores: 4} }

func TestActorRunsBodyAndStops(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	a := New("svc1", testHost(), "svc1_mailbox", clk, mbox)

	clk.Join()
	a.Start(func(a *Actor) error {
		<-a.Stopping()
		return nil
	})
	a.Stop()
	clk.Leave() // hand the turn to the spawned actor so its body can run

	waitDone(t, a)
	assert.Equal(t, StateDown, a.State())
	assert.False(t, a.IsKilled())
}

func TestKillMarksMailboxDown(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	a := New("svc2", testHost(), "svc2_mailbox", clk, mbox)

	clk.Join()
	a.Start(func(a *Actor) error {
		<-a.Stopping()
		return nil
	})
	a.Kill()
	clk.Leave() // hand the turn to the spawned actor so its body can run

	waitDone(t, a)
	assert.True(t, a.IsKilled())

	err := mbox.Put("svc2_mailbox", "someone", 8, []byte(`null`))
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.ServiceIsDown))
}

func waitDone(t *testing.T, a *Actor) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor body never returned")
	}
}
