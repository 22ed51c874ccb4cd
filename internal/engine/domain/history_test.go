package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAssignsSequentialIDs(t *testing.T) {
	h := NewHistory()
	e1 := h.Append(HistoryEntry{PositionID: "POS1", Action: ActionOpen, Timestamp: time.Now()})
	e2 := h.Append(HistoryEntry{PositionID: "POS2", Action: ActionOpen, Timestamp: time.Now()})

	assert.Equal(t, uint64(1), e1.ID)
	assert.Equal(t, uint64(2), e2.ID)
	assert.Equal(t, 2, h.Len())
}

func TestHistoryQueryMostRecentFirst(t *testing.T) {
	h := NewHistory()
	h.Append(HistoryEntry{PositionID: "POS1", Action: ActionOpen})
	h.Append(HistoryEntry{PositionID: "POS2", Action: ActionOpen})
	h.Append(HistoryEntry{PositionID: "POS1", Action: ActionClose})

	all := h.Query("")
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].ID)
	assert.Equal(t, uint64(1), all[2].ID)

	pos1 := h.Query("POS1")
	require.Len(t, pos1, 2)
	assert.Equal(t, ActionClose, pos1[0].Action)
	assert.Equal(t, ActionOpen, pos1[1].Action)
}

func TestHistoryQueryReturnsCopies(t *testing.T) {
	h := NewHistory()
	h.Append(HistoryEntry{PositionID: "POS1", Action: ActionOpen, Reason: "fill"})

	got := h.Query("POS1")
	got[0].Reason = "tampered"

	again := h.Query("POS1")
	assert.Equal(t, "fill", again[0].Reason, "history entries are immutable once written")
}
