package logrecord

import (
	"testing"

	"storemy-core/pkg/types"

	"github.com/stretchr/testify/require"
)

// TestWALLayoutScenario builds the exact record sequence for one
// transaction inserting two tuples and committing, assigning LSNs by
// hand the way the log manager would, and checks each record's wire
// size and previous-LSN chaining.
func TestWALLayoutScenario(t *testing.T) {
	const txn = types.TxnID(1)

	begin := NewBegin(txn, types.InvalidLSN)
	begin.LSN = 0
	require.EqualValues(t, 20, begin.Size)

	newPage := NewNewPage(txn, begin.LSN, types.InvalidPageID, 5)
	newPage.LSN = 1
	require.EqualValues(t, 28, newPage.Size)
	require.EqualValues(t, 0, newPage.PrevLSN)

	tuple := []byte("row-one")
	insert1 := NewInsert(txn, newPage.LSN, types.RID{PageID: 5, Slot: 0}, tuple)
	insert1.LSN = 2
	require.EqualValues(t, 1, insert1.PrevLSN)

	insert2 := NewInsert(txn, insert1.LSN, types.RID{PageID: 5, Slot: 1}, tuple)
	insert2.LSN = 3
	require.EqualValues(t, 2, insert2.PrevLSN)

	commit := NewCommit(txn, insert2.LSN)
	commit.LSN = 4
	require.EqualValues(t, 20, commit.Size)
	require.EqualValues(t, 3, commit.PrevLSN)

	records := []*Record{begin, newPage, insert1, insert2, commit}
	for i, r := range records {
		decoded, n, err := Decode(r.Encode())
		require.NoError(t, err)
		require.EqualValues(t, r.Size, n, "record %d", i)
		require.Equal(t, r.LSN, decoded.LSN, "record %d", i)
		require.Equal(t, r.Type, decoded.Type, "record %d", i)
		require.Equal(t, r.PrevLSN, decoded.PrevLSN, "record %d", i)
	}
}

func TestInsertRoundTrip(t *testing.T) {
	rid := types.RID{PageID: 9, Slot: 3}
	rec := NewInsert(types.TxnID(7), types.LSN(4), rid, []byte("payload"))
	rec.LSN = 5

	decoded, n, err := Decode(rec.Encode())
	require.NoError(t, err)
	require.EqualValues(t, rec.Size, n)
	require.Equal(t, rid, decoded.RID)
	require.Equal(t, []byte("payload"), decoded.Tuple)
}

func TestUpdateRoundTrip(t *testing.T) {
	rid := types.RID{PageID: 2, Slot: 1}
	rec := NewUpdate(types.TxnID(3), types.InvalidLSN, rid, []byte("old"), []byte("newer-value"))
	rec.LSN = 1

	decoded, n, err := Decode(rec.Encode())
	require.NoError(t, err)
	require.EqualValues(t, rec.Size, n)
	require.Equal(t, []byte("old"), decoded.OldTuple)
	require.Equal(t, []byte("newer-value"), decoded.NewTuple)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	rec := NewCommit(types.TxnID(1), types.InvalidLSN)
	rec.LSN = 0
	encoded := rec.Encode()

	_, _, err := Decode(encoded[:10])
	require.Error(t, err)
}
