package sensor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox(t *testing.T) {
	t.Parallel()

	var m Mailbox
	_, ok := m.Take()
	assert.False(t, ok, "empty mailbox")

	assert.False(t, m.Put(SkeletonFrame{FrameNumber: 1}))
	assert.True(t, m.Put(SkeletonFrame{FrameNumber: 2}))
	assert.True(t, m.Put(SkeletonFrame{FrameNumber: 3}))
	assert.Equal(t, uint64(2), m.Drops())

	f, ok := m.Take()
	require.True(t, ok)
	assert.Equal(t, uint32(3), f.FrameNumber)

	_, ok = m.Take()
	assert.False(t, ok)

	assert.False(t, m.Put(SkeletonFrame{FrameNumber: 4}), "put after take does not drop")
	m.Reset()
	assert.Equal(t, uint64(0), m.Drops())
	_, ok = m.Take()
	assert.False(t, ok)
}

func TestMailbox_Concurrent(t *testing.T) {
	t.Parallel()

	var m Mailbox
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			m.Put(SkeletonFrame{FrameNumber: uint32(i)})
		}
	}()

	var taken uint64
	var last uint32
	for {
		if f, ok := m.Take(); ok {
			require.Greater(t, f.FrameNumber, last, "frames are handed over in order")
			last = f.FrameNumber
			taken++
			if last == n {
				break
			}
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(n), taken+m.Drops())
}
