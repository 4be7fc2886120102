package ledger

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	l := New(fixedClock(time.Unix(0, 0)))
	e1 := l.Append(TaskStart, map[string]any{"taskId": "t1"})
	e2 := l.Append(TaskEnd, map[string]any{"taskId": "t1"})

	require.Equal(t, int64(1), e1.ID)
	require.Equal(t, int64(2), e2.ID)
	require.Equal(t, 2, l.Len())
}

func TestAppendPanicsOnUnknownEventType(t *testing.T) {
	l := New(nil)
	require.Panics(t, func() {
		l.Append(EventType("NOT_A_REAL_TYPE"), nil)
	})
}

func TestSubscribersReceiveInRegistrationOrder(t *testing.T) {
	l := New(nil)
	var mu sync.Mutex
	var order []string

	sub := func(name string) Subscriber {
		return subscriberFunc(func(e Entry) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}
	l.Subscribe(sub("first"))
	l.Subscribe(sub("second"))

	l.Append(PlanSelected, nil)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	l := New(nil)
	var count int
	subscription := l.Subscribe(subscriberFunc(func(e Entry) error {
		count++
		return nil
	}))

	l.Append(PlanSelected, nil)
	require.NoError(t, subscription.Close())
	l.Append(PlanSelected, nil)

	require.Equal(t, 1, count)
}

func TestMarshalJSONLOneEntryPerLine(t *testing.T) {
	l := New(fixedClock(time.Unix(100, 0)))
	l.Append(TaskStart, map[string]any{"taskId": "t1"})
	l.Append(TaskEnd, map[string]any{"taskId": "t1"})

	raw, err := l.MarshalJSONL()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	require.Equal(t, TaskStart, e.Type)
}

func TestIsKnownRejectsArbitraryStrings(t *testing.T) {
	require.True(t, IsKnown(TaskStart))
	require.False(t, IsKnown(EventType("BOGUS")))
}

type subscriberFunc func(e Entry) error

func (f subscriberFunc) HandleEntry(e Entry) error { return f(e) }
