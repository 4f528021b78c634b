package wal

import (
	"testing"
	"time"

	"storemy-core/pkg/disk"
	"storemy-core/pkg/errs"
	"storemy-core/pkg/logrecord"
	"storemy-core/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, disk.Manager) {
	t.Helper()
	dm, err := disk.NewFileManager(afero.NewMemMapFs(), "/data.db", "/wal.log")
	require.NoError(t, err)
	return New(dm, 4096, 20*time.Millisecond, nil), dm
}

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	m, _ := newTestManager(t)
	defer m.StopFlushThread()

	txn := types.TxnID(1)
	lsn0, err := m.Append(logrecord.NewBegin(txn, types.InvalidLSN))
	require.NoError(t, err)
	lsn1, err := m.Append(logrecord.NewCommit(txn, lsn0))
	require.NoError(t, err)

	require.EqualValues(t, 0, lsn0)
	require.EqualValues(t, 1, lsn1)
}

func TestForceWaitsForDurability(t *testing.T) {
	m, _ := newTestManager(t)
	defer m.StopFlushThread()

	lsn, err := m.Append(logrecord.NewBegin(types.TxnID(1), types.InvalidLSN))
	require.NoError(t, err)

	require.NoError(t, m.Force())
	require.GreaterOrEqual(t, m.PersistentLSN(), lsn)
}

func TestCommitWaitUnblocksAtTargetLSN(t *testing.T) {
	m, _ := newTestManager(t)
	defer m.StopFlushThread()

	txn := types.TxnID(1)
	lsn0, err := m.Append(logrecord.NewBegin(txn, types.InvalidLSN))
	require.NoError(t, err)
	lsn1, err := m.Append(logrecord.NewCommit(txn, lsn0))
	require.NoError(t, err)

	require.NoError(t, m.CommitWait(lsn1))
	require.GreaterOrEqual(t, m.PersistentLSN(), lsn1)
}

func TestAppendAfterStopFails(t *testing.T) {
	m, _ := newTestManager(t)
	m.StopFlushThread()

	_, err := m.Append(logrecord.NewBegin(types.TxnID(1), types.InvalidLSN))
	require.ErrorIs(t, err, errs.ErrLoggingStopped)
}
