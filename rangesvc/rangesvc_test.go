package rangesvc

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/round"
	"github.com/zabojeb/TSRNG/store"
)

func beaconedRound(t *testing.T) (*round.Service, string) {
	t.Helper()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	svc := round.NewService(store.NewMemStore(), log.New(zerolog.Disabled), reg)

	ctx := context.Background()
	leaf := make([]byte, 64)
	m, err := svc.Commit(ctx, "demo", []round.StreamSubmission{{Name: "A", Leaves: [][]byte{leaf}}}, 64)
	require.NoError(t, err)
	_, err = svc.Beacon(ctx, m.RoundID, "00", 4, 256)
	require.NoError(t, err)
	return svc, m.RoundID
}

func TestRandomRange_Deterministic(t *testing.T) {
	svc, roundID := beaconedRound(t)
	ctx := context.Background()
	hist := NewMemHistoryWriter()

	req := Request{RoundID: roundID, Start: 0, End: 99, Count: 5, Domain: "lottery"}
	a, err := RandomRange(ctx, svc, req, hist)
	require.NoError(t, err)
	b, err := RandomRange(ctx, svc, req, hist)
	require.NoError(t, err)
	require.Equal(t, a.Numbers, b.Numbers)
	require.Len(t, a.Numbers, 5)

	require.Len(t, hist.Lines(roundID), 2)
}

func TestRandomRange_DifferentDomainDiffers(t *testing.T) {
	svc, roundID := beaconedRound(t)
	ctx := context.Background()

	a, err := RandomRange(ctx, svc, Request{RoundID: roundID, Start: 0, End: 999, Count: 10, Domain: "d1"}, nil)
	require.NoError(t, err)
	b, err := RandomRange(ctx, svc, Request{RoundID: roundID, Start: 0, End: 999, Count: 10, Domain: "d2"}, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.Numbers, b.Numbers)
}

func TestRandomRange_RejectsInvertedRange(t *testing.T) {
	svc, roundID := beaconedRound(t)
	_, err := RandomRange(context.Background(), svc, Request{RoundID: roundID, Start: 10, End: 5, Count: 1}, nil)
	require.ErrorIs(t, err, round.ErrRangeInvalid)
}

func TestRandomRange_RejectsCountAboveRangeSize(t *testing.T) {
	svc, roundID := beaconedRound(t)
	_, err := RandomRange(context.Background(), svc, Request{RoundID: roundID, Start: 0, End: 2, Count: 10}, nil)
	require.ErrorIs(t, err, round.ErrRangeInvalid)
}

func TestRandomRange_RequiresBeaconSeed(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	svc := round.NewService(store.NewMemStore(), log.New(zerolog.Disabled), reg)
	ctx := context.Background()
	leaf := make([]byte, 64)
	m, err := svc.Commit(ctx, "demo", []round.StreamSubmission{{Name: "A", Leaves: [][]byte{leaf}}}, 64)
	require.NoError(t, err)

	_, err = RandomRange(ctx, svc, Request{RoundID: m.RoundID, Start: 0, End: 9, Count: 1}, nil)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestRandomRange_DomainBytesLayout(t *testing.T) {
	svc, roundID := beaconedRound(t)
	res, err := RandomRange(context.Background(), svc, Request{
		RoundID: roundID, Start: 0, End: 9, Count: 1, Domain: "game", Context: "ctx1",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "TSRNG/range|"+roundID+"|game|ctx1", string(res.DomainBytes))
}

func TestRandomRange_HistoryWriteFailureIsNonFatal(t *testing.T) {
	svc, roundID := beaconedRound(t)
	res, err := RandomRange(context.Background(), svc, Request{
		RoundID: roundID, Start: 0, End: 9, Count: 1,
	}, failingHistoryWriter{})
	require.NoError(t, err)
	require.True(t, res.HistoryWriteFailed)
}

type failingHistoryWriter struct{}

func (failingHistoryWriter) AppendLine(ctx context.Context, roundID string, line []byte) error {
	return errors.New("history write always fails in this test")
}
