package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const token = "0123456789abcdef"

func TestValidToken(t *testing.T) {
	require.True(t, ValidToken("0123456789abcdef"))
	require.True(t, ValidToken("ffffffffffffffff"))

	require.False(t, ValidToken(""))
	require.False(t, ValidToken("0123456789ABCDEF"))
	require.False(t, ValidToken("0123456789abcde"))
	require.False(t, ValidToken("0123456789abcdef0"))
	require.False(t, ValidToken("../../etc/passwd"))
	require.False(t, ValidToken("0123456789abcdeg"))
}

func TestStore_GetMissingToken(t *testing.T) {
	s := NewStore(time.Hour)

	_, ok := s.Get(token)
	require.False(t, ok)
}

func TestStore_BeginWritesStartingRecord(t *testing.T) {
	s := NewStore(time.Hour)

	require.NoError(t, s.Begin(token, func() {}))

	rec, ok := s.Get(token)
	require.True(t, ok)
	require.Equal(t, StatusStarting, rec.Status)
	require.NotNil(t, rec.Percent)
	require.Equal(t, 0.0, *rec.Percent)
}

func TestStore_BeginRejectsInFlightToken(t *testing.T) {
	s := NewStore(time.Hour)

	require.NoError(t, s.Begin(token, func() {}))
	require.ErrorIs(t, s.Begin(token, func() {}), ErrInFlight)
}

func TestStore_BeginReplacesTerminalRecord(t *testing.T) {
	s := NewStore(time.Hour)

	require.NoError(t, s.Begin(token, func() {}))
	s.Finish(token, Record{Status: StatusError, Message: "HTTP 404"})

	require.NoError(t, s.Begin(token, func() {}))
	rec, ok := s.Get(token)
	require.True(t, ok)
	require.Equal(t, StatusStarting, rec.Status)
}

func TestStore_UpdateOverwritesWholeRecord(t *testing.T) {
	s := NewStore(time.Hour)
	require.NoError(t, s.Begin(token, func() {}))

	pct := 42.5
	s.Update(token, Record{
		Status:     StatusDownloading,
		Downloaded: 425,
		Total:      1000,
		Percent:    &pct,
		Speed:      212,
		Filename:   "a.bin",
	})

	rec, ok := s.Get(token)
	require.True(t, ok)
	require.Equal(t, StatusDownloading, rec.Status)
	require.Equal(t, int64(425), rec.Downloaded)
	require.Equal(t, int64(1000), rec.Total)
	require.Equal(t, 42.5, *rec.Percent)
}

func TestStore_UpdateAfterDeleteIsNoop(t *testing.T) {
	s := NewStore(time.Hour)
	require.NoError(t, s.Begin(token, func() {}))
	s.Delete(token)

	s.Update(token, Record{Status: StatusDownloading})
	_, ok := s.Get(token)
	require.False(t, ok)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := NewStore(time.Hour)
	require.NoError(t, s.Begin(token, func() {}))

	s.Delete(token)
	s.Delete(token)
	s.Delete("fedcba9876543210")

	require.Equal(t, 0, s.Len())
}

func TestStore_CancelAbortsInFlight(t *testing.T) {
	s := NewStore(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Begin(token, cancel))

	require.True(t, s.Cancel(token))
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	// second cancel and cancel of unknown token are no-ops
	require.False(t, s.Cancel(token))
	require.False(t, s.Cancel("fedcba9876543210"))
}

func TestStore_CancelAfterFinishIsNoop(t *testing.T) {
	s := NewStore(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Begin(token, cancel))
	s.Finish(token, Record{Status: StatusDone})

	require.False(t, s.Cancel(token))
	require.NoError(t, ctx.Err())
}

func TestStore_SweepEvictsOnlyExpiredTerminalRecords(t *testing.T) {
	s := NewStore(time.Minute)

	require.NoError(t, s.Begin(token, func() {}))
	s.Finish(token, Record{Status: StatusDone})

	inflight := "fedcba9876543210"
	require.NoError(t, s.Begin(inflight, func() {}))

	// not yet expired
	s.sweep(time.Now())
	require.Equal(t, 2, s.Len())

	s.sweep(time.Now().Add(2 * time.Minute))
	_, ok := s.Get(token)
	require.False(t, ok)
	_, ok = s.Get(inflight)
	require.True(t, ok, "in-flight records must survive the sweep")
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusDone.Terminal())
	require.True(t, StatusError.Terminal())
	require.False(t, StatusStarting.Terminal())
	require.False(t, StatusDownloading.Terminal())
	require.False(t, StatusIdle.Terminal())
}
