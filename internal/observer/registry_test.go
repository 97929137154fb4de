package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyReachesEverySubscriberInOrder(t *testing.T) {
	r := New[int]()
	var got [3][]int
	for i := range got {
		i := i
		r.Subscribe(func(v int) { got[i] = append(got[i], v) })
	}

	for v := 1; v <= 3; v++ {
		r.Notify(v)
	}

	for i := range got {
		assert.Equal(t, []int{1, 2, 3}, got[i], "subscriber %d", i)
	}
}

func TestUnsubscribeDuringNotifyKeepsRemainingDeliveries(t *testing.T) {
	r := New[string]()
	var order []string

	var unsubFirst func()
	unsubFirst = r.Subscribe(func(v string) {
		order = append(order, "first:"+v)
		unsubFirst()
	})
	unsubSecond := r.Subscribe(func(v string) {
		order = append(order, "second:"+v)
	})
	r.Subscribe(func(v string) {
		order = append(order, "third:"+v)
		unsubSecond()
	})

	r.Notify("a")
	r.Notify("b")

	assert.Equal(t, []string{"first:a", "second:a", "third:a", "third:b"}, order)
	assert.Equal(t, 1, r.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := New[int]()
	unsub := r.Subscribe(func(int) {})
	r.Subscribe(func(int) {})

	unsub()
	unsub()

	assert.Equal(t, 1, r.Len())
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	r := New[int]()
	r.Subscribe(func(int) { panic("boom") })
	var seen int
	r.Subscribe(func(v int) { seen = v })

	require.NotPanics(t, func() { r.Notify(7) })
	assert.Equal(t, 7, seen)
}

func TestNilRegistryIsInert(t *testing.T) {
	var r *Registry[int]
	unsub := r.Subscribe(func(int) {})
	unsub()
	r.Notify(1)
	assert.Zero(t, r.Len())
}
