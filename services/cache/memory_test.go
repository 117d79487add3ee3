package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryService_SetGetDelete(t *testing.T) {
	m := NewMemoryService(0)
	defer m.Close()

	assert.NoError(t, m.Set("key", []byte("value"), 0))

	value, err := m.Get("key")
	assert.NoError(t, err)
	assert.Equal(t, "value", string(value))

	assert.NoError(t, m.Delete("key"))
	_, err = m.Get("key")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryService_MissOnUnknownKey(t *testing.T) {
	m := NewMemoryService(0)
	defer m.Close()

	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryService_TTL(t *testing.T) {
	m := NewMemoryService(0)
	defer m.Close()

	assert.NoError(t, m.Set("key", []byte("value"), 50*time.Millisecond))

	// Served within the TTL
	value, err := m.Get("key")
	assert.NoError(t, err)
	assert.Equal(t, "value", string(value))

	// A miss after the TTL elapses
	time.Sleep(70 * time.Millisecond)
	_, err = m.Get("key")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryService_SetCopiesValue(t *testing.T) {
	m := NewMemoryService(0)
	defer m.Close()

	buf := []byte("original")
	assert.NoError(t, m.Set("key", buf, 0))
	buf[0] = 'X'

	value, _ := m.Get("key")
	assert.Equal(t, "original", string(value))
}

func TestMemoryService_Len(t *testing.T) {
	m := NewMemoryService(0)
	defer m.Close()

	m.Set("a", []byte("1"), 0)
	m.Set("b", []byte("2"), 30*time.Millisecond)
	assert.Equal(t, 2, m.Len())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.Len(), "expired entries do not count")
}

func TestMemoryService_Janitor(t *testing.T) {
	m := NewMemoryService(20 * time.Millisecond)
	defer m.Close()

	m.Set("key", []byte("value"), 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	// The janitor has physically removed the entry, not just hidden it
	m.mu.Lock()
	_, exists := m.items["key"]
	m.mu.Unlock()
	assert.False(t, exists)
}

func TestMemoryService_CloseIsIdempotent(t *testing.T) {
	m := NewMemoryService(time.Minute)
	m.Close()
	m.Close()
}
