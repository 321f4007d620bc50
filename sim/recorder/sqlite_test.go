package recorder

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsim/qsim/sim/events"
)

func openTemp(t *testing.T) (*SQLiteRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.sqlite3")
	r, err := Open(path)
	require.NoError(t, err)
	return r, path
}

func countRows(t *testing.T, path, query string, args ...any) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestSQLiteRecorder_FlushWritesBufferedEvents(t *testing.T) {
	// GIVEN a recorder behind a causal manager
	r, path := openTemp(t)
	mgr := events.NewCausal()
	mgr.AddHandler(r)
	require.NoError(t, mgr.InitProcessing())

	// WHEN events are processed and the manager finishes
	require.NoError(t, mgr.ProcessEvent(events.New(0, events.KindDeparture,
		events.Person("p1"), events.Vehicle("v1"), events.Link("l1"), events.Attr("legMode", "car"))))
	require.NoError(t, mgr.ProcessEvent(events.New(3, events.KindLinkEntered,
		events.Person("p1"), events.Vehicle("v1"), events.Link("l1"))))
	require.NoError(t, mgr.FinishProcessing())
	runID := r.RunID()
	require.NoError(t, r.Close())

	// THEN the run and both events are stored in order
	assert.Equal(t, 1, countRows(t, path, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID))
	assert.Equal(t, 2, countRows(t, path, `SELECT COUNT(*) FROM events WHERE run_id = ?`, runID))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var kind, attrs string
	require.NoError(t, db.QueryRow(`SELECT kind, attrs FROM events WHERE seq = 1`).Scan(&kind, &attrs))
	assert.Equal(t, "departure", kind)
	assert.JSONEq(t, `[["legMode","car"]]`, attrs)
}

func TestSQLiteRecorder_AttributesKeepOrderAndDuplicates(t *testing.T) {
	// GIVEN an event whose attributes are out of key order and repeat a key
	r, path := openTemp(t)
	require.NoError(t, r.HandleEvent(events.New(1, events.KindActivityEnded,
		events.Person("p1"), events.Attr("zone", "b"), events.Attr("actType", "work"), events.Attr("zone", "c"))))

	// WHEN flushed and closed
	require.NoError(t, r.Close())

	// THEN the stored pairs match the event exactly
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var attrs string
	require.NoError(t, db.QueryRow(`SELECT attrs FROM events WHERE seq = 1`).Scan(&attrs))
	assert.Equal(t, `[["zone","b"],["actType","work"],["zone","c"]]`, attrs)
}

func TestSQLiteRecorder_BatchSizeTriggersWrite(t *testing.T) {
	// GIVEN a batch size of two
	r, path := openTemp(t)
	r.SetBatchSize(2)

	// WHEN three events are handled without an explicit flush
	for i := 0; i < 3; i++ {
		require.NoError(t, r.HandleEvent(events.New(float64(i), events.KindLinkLeft, events.Person("p1"))))
	}

	// THEN the first batch is already on disk
	assert.Equal(t, 2, countRows(t, path, `SELECT COUNT(*) FROM events`))
	require.NoError(t, r.Close())
	assert.Equal(t, 3, countRows(t, path, `SELECT COUNT(*) FROM events`))
}

func TestSQLiteRecorder_ResetStartsNewRun(t *testing.T) {
	r, path := openTemp(t)
	require.NoError(t, r.HandleEvent(events.New(0, events.KindDeparture, events.Person("p1"))))
	require.NoError(t, r.Flush())
	first := r.RunID()

	r.Reset()
	require.NoError(t, r.HandleEvent(events.New(0, events.KindDeparture, events.Person("p1"))))
	require.NoError(t, r.Close())

	assert.NotEqual(t, first, r.RunID())
	assert.Equal(t, 2, countRows(t, path, `SELECT COUNT(*) FROM runs`))
}

func TestSQLiteRecorder_Closed(t *testing.T) {
	r, _ := openTemp(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.HandleEvent(events.New(0, events.KindDeparture)), ErrClosed)
}

func TestOpen_ExistingFile_Rejected(t *testing.T) {
	r, path := openTemp(t)
	require.NoError(t, r.Close())

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
