package presence

import (
	"fmt"
	"sync"
	"testing"

	"decormart/messaging-service/internal/events"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	userID string
}

func (c *stubConn) UserID() string            { return c.userID }
func (c *stubConn) Send(events.Outbound) bool { return true }

func TestRegisterAndLookup(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, ok := r.Lookup("alice")
	req.False(ok)

	conn := &stubConn{userID: "alice"}
	r.Register("alice", conn)

	got, ok := r.Lookup("alice")
	req.True(ok)
	req.Same(conn, got)
	req.Equal(1, r.Count())
}

func TestRegisterOverwritesLastConnectedWins(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	first := &stubConn{userID: "alice"}
	second := &stubConn{userID: "alice"}
	r.Register("alice", first)
	r.Register("alice", second)

	got, ok := r.Lookup("alice")
	req.True(ok)
	req.Same(second, got)
	req.Equal(1, r.Count())
}

func TestUnregisterStaleCloseGuard(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Connection A, then a rapid reconnect as B, then A's close arrives.
	a := &stubConn{userID: "alice"}
	b := &stubConn{userID: "alice"}
	r.Register("alice", a)
	r.Register("alice", b)
	r.Unregister("alice", a)

	got, ok := r.Lookup("alice")
	req.True(ok)
	req.Same(b, got)

	// The live connection's own close does remove it.
	r.Unregister("alice", b)
	_, ok = r.Lookup("alice")
	req.False(ok)
	req.Zero(r.Count())
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n%10)
			conn := &stubConn{userID: userID}
			r.Register(userID, conn)
			r.Lookup(userID)
			r.Unregister(userID, conn)
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, r.Count(), 10)
}
