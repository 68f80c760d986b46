package audit

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLinksEntries(t *testing.T) {
	c := NewChainLogger()

	first := c.Append("op=credit_issue dispute=DSP-1 amount=250.00")
	second := c.Append("op=credit_reverse dispute=DSP-1 amount=250.00")

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, strings.Repeat("0", 64), first.PreviousHash)
	assert.Equal(t, first.Hash, second.PreviousHash)
}

func TestVerifyChain(t *testing.T) {
	c := NewChainLogger()
	for i := 0; i < 5; i++ {
		c.Append(fmt.Sprintf("payload-%d", i))
	}

	entries := c.Entries()
	require.Len(t, entries, 5)
	assert.True(t, VerifyChain(entries))

	entries[2].Payload = "rewritten"
	assert.False(t, VerifyChain(entries), "editing an entry must break the chain")
}

func TestVerifyChainDetectsRelink(t *testing.T) {
	c := NewChainLogger()
	c.Append("a")
	c.Append("b")
	c.Append("c")

	entries := c.Entries()
	entries[1] = entries[2]
	assert.False(t, VerifyChain(entries[:2]))
}

func TestConcurrentAppend(t *testing.T) {
	c := NewChainLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Append(fmt.Sprintf("payload-%d", n))
		}(i)
	}
	wg.Wait()

	entries := c.Entries()
	require.Len(t, entries, 50)
	assert.True(t, VerifyChain(entries))
}
