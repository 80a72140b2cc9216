package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

func TestNewFixesKeySet(t *testing.T) {
	c := New([]string{"http://a", "http://b"})

	assert.Len(t, c.Backends(), 2)
	assert.Nil(t, c.Static("http://missing"), "Static() on unknown key should return nil, not panic")
}

func TestSetStaticIsWriteOnce(t *testing.T) {
	c := New([]string{"http://a"})

	c.SetStatic("http://a", domain.StaticRecord{Model: "m1", Kind: domain.KindLlamaCPP})
	c.SetStatic("http://a", domain.StaticRecord{Model: "m2", Kind: domain.KindVLLM})

	got := c.Static("http://a")
	require.NotNil(t, got)
	assert.Equal(t, "m1", got.Model, "first write must be preserved")
}

func TestSetDynamicReplacesWholesale(t *testing.T) {
	c := New([]string{"http://a"})

	c.SetDynamic("http://a", domain.DynamicRecord{RequestsProcessing: 1, Ready: true, Timestamp: time.Now()})
	c.SetDynamic("http://a", domain.DynamicRecord{RequestsProcessing: 2, Ready: false, Timestamp: time.Now()})

	got := c.Dynamic("http://a")
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.RequestsProcessing)
	assert.False(t, got.Ready)
}

func TestSnapshotAllCoversEveryBackend(t *testing.T) {
	c := New([]string{"http://a", "http://b"})
	c.SetStatic("http://a", domain.StaticRecord{Model: "m1", Kind: domain.KindLlamaCPP})

	snaps := c.SnapshotAll()
	require.Len(t, snaps, 2)

	for _, s := range snaps {
		switch s.URL {
		case "http://a":
			require.NotNil(t, s.Static)
			assert.Equal(t, "m1", s.Static.Model)
		case "http://b":
			assert.Nil(t, s.Dynamic, "backend with no refresh tick yet should have no dynamic record")
		}
	}
}

func TestConcurrentReadWriteIsRaceFree(t *testing.T) {
	c := New([]string{"http://a"})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.SetDynamic("http://a", domain.DynamicRecord{RequestsProcessing: float64(n), Timestamp: time.Now()})
		}(i)
		go func() {
			defer wg.Done()
			_ = c.Dynamic("http://a")
		}()
	}
	wg.Wait()
}
