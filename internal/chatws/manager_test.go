package chatws

import (
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

func TestSessionManager_RegisterAndUnregister(t *testing.T) {
	sm := NewSessionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register(1, conn1)
	sm.Register(1, conn2)
	sm.Register(1, conn1)
	assert.Equal(t, 2, sm.Count(1))

	sm.Unregister(1, conn1)
	assert.Equal(t, 1, sm.Count(1))

	sm.Unregister(1, conn2)
	assert.Zero(t, sm.Count(1))
}

func TestSessionManager_UnregisterUnknownIsNoop(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}
	sm.Register(1, conn)

	sm.Unregister(2, conn)
	sm.Unregister(1, &websocket.Conn{})
	assert.Equal(t, 1, sm.Count(1))
}

func TestSessionManager_CloseSessionWithoutConnections(t *testing.T) {
	sm := NewSessionManager()
	assert.NotPanics(t, func() { sm.CloseSession(42) })
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				conn := &websocket.Conn{}
				sm.Register(id, conn)
				sm.Count(id)
				sm.Unregister(id, conn)
			}
		}(int64(i))
	}
	wg.Wait()

	for i := int64(0); i < 4; i++ {
		assert.Zero(t, sm.Count(i))
	}
}
