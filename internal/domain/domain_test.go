package domain

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_InsertKeepsNewestInOrder(t *testing.T) {
	var h History
	for i := range 50 {
		h = h.Insert(strconv.Itoa(i))
		require.LessOrEqual(t, len(h), HistoryLimit)
		assert.Equal(t, strconv.Itoa(i), h[len(h)-1])
	}

	require.Len(t, h, HistoryLimit)
	for i, id := range h {
		assert.Equal(t, strconv.Itoa(30+i), id)
	}
	assert.False(t, h.Contains("29"))
	assert.True(t, h.Contains("30"))
}

func TestHistory_InsertDoesNotMutateReceiver(t *testing.T) {
	h := History{"a", "b"}
	next := h.Insert("c")

	assert.Equal(t, History{"a", "b"}, h)
	assert.Equal(t, History{"a", "b", "c"}, next)
}

func TestNormalizeHistory(t *testing.T) {
	ids := []string{"", "x"}
	for i := range 25 {
		ids = append(ids, fmt.Sprintf("id%d", i))
	}

	h := NormalizeHistory(ids)

	require.Len(t, h, HistoryLimit)
	assert.Equal(t, "id5", h[0])
	assert.Equal(t, "id24", h[HistoryLimit-1])
	assert.Empty(t, NormalizeHistory(nil))
}

func TestSource_IsStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := NewSource("https://example.com", now.Add(-3*time.Hour))

	assert.False(t, src.IsStale(now, 2*time.Hour), "idle is never stale")

	src.SetState(StateAcquiring, now.Add(-3*time.Hour))
	assert.True(t, src.IsStale(now, 2*time.Hour))
	assert.False(t, src.IsStale(now, 4*time.Hour))
}

func TestSource_CloneIsDeep(t *testing.T) {
	src := &Source{ID: 1, History: History{"a"}}
	c := src.Clone()
	c.History[0] = "b"

	assert.Equal(t, "a", src.History[0])
}

func TestFeed_Candidate(t *testing.T) {
	feed := &Feed{Items: []FeedItem{{ItemID: "a"}, {ItemID: "b"}}}

	item, ok := feed.Candidate(1)
	assert.True(t, ok)
	assert.Equal(t, "b", item.ItemID)

	_, ok = feed.Candidate(2)
	assert.False(t, ok)
	_, ok = feed.Candidate(-1)
	assert.False(t, ok)

	var empty *Feed
	_, ok = empty.Candidate(0)
	assert.False(t, ok)
}

func TestAcquisitionKindOf(t *testing.T) {
	err := fmt.Errorf("probe: %w", &AcquisitionError{Kind: AcquisitionLiveInProgress, ItemID: "x"})

	assert.Equal(t, AcquisitionLiveInProgress, AcquisitionKindOf(err))
	assert.Equal(t, AcquisitionUnknown, AcquisitionKindOf(errors.New("other")))
	assert.Equal(t, AcquisitionUnknown, AcquisitionKindOf(nil))
}

func TestCycleStats_Record(t *testing.T) {
	var stats CycleStats
	stats.Record(Outcome{Result: ResultPublished})
	stats.Record(Outcome{Result: ResultPublished})
	stats.Record(Outcome{Result: ResultRetry})

	assert.Equal(t, 2, stats.Results[ResultPublished])
	assert.Equal(t, 1, stats.Results[ResultRetry])
}
