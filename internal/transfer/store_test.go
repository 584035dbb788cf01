package transfer

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateThenGet(t *testing.T) {
	s := NewStore()
	in := Info{FileName: "a.txt", FileSize: 100, SenderID: "sender"}

	id := s.Create(in)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	got, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, in, got)
	require.Equal(t, 1, s.Len())
}

func TestStore_GetUnknown(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("missing")
	require.False(t, ok)
}

func TestStore_CreateRetriesOnCollision(t *testing.T) {
	s := NewStore()
	ids := []string{"dup", "dup", "fresh"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	require.Equal(t, "dup", s.Create(Info{FileName: "first"}))
	require.Equal(t, "fresh", s.Create(Info{FileName: "second"}))

	first, _ := s.Get("dup")
	require.Equal(t, "first", first.FileName)
}

func TestStore_ConcurrentCreateYieldsUniqueIDs(t *testing.T) {
	s := NewStore()
	const n = 200

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.Create(Info{FileName: "f", FileSize: 1, SenderID: "s"})
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, n)
	require.Equal(t, n, s.Len())
}
