package transit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipei-transit/crowding-dashboard/internal/refdata"
)

type fakeCrowdingFeed struct {
	records []CrowdingRecord
	err     error
	calls   int
}

func (f *fakeCrowdingFeed) FetchCrowding(ctx context.Context) ([]CrowdingRecord, error) {
	f.calls++
	return f.records, f.err
}

type fakeLocationFeed struct {
	records []LocationRecord
	err     error
	calls   int
}

func (f *fakeLocationFeed) FetchLocations(ctx context.Context, city string) ([]LocationRecord, error) {
	f.calls++
	return f.records, f.err
}

func newTestService(crowding *fakeCrowdingFeed, location *fakeLocationFeed, now time.Time) *Service {
	svc := NewService(crowding, location, refdata.Builtin(), "Taipei")
	svc.now = func() time.Time { return now }
	return svc
}

func crowdingFixture(busID string, level int) CrowdingRecord {
	return CrowdingRecord{
		RouteID:    "10832",
		BusID:      busID,
		ProviderID: "100",
		StopID:     "11730",
		Direction:  DirectionOutbound,
		Level:      level,
		DataTime:   time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC),
	}
}

func locationFixture(plate string) LocationRecord {
	lat, lon := 25.0478, 121.517
	return LocationRecord{
		PlateNumber:      plate,
		RouteName:        "307",
		Direction:        DirectionOutbound,
		Latitude:         &lat,
		Longitude:        &lon,
		SourceUpdateTime: time.Date(2024, 6, 1, 11, 59, 30, 0, time.UTC),
	}
}

func TestReconcileJoinsByPlateNumber(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{records: []CrowdingRecord{crowdingFixture("111-FB", 2)}}
	location := &fakeLocationFeed{records: []LocationRecord{
		locationFixture("111-FB"),
		locationFixture("999-ZZ"),
	}}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), PollResult{})

	require.NoError(t, res.CrowdingErr)
	require.NoError(t, res.LocationErr)
	require.Len(t, res.Joined, 2)

	matched := res.Joined[0]
	require.NotNil(t, matched.Crowding)
	assert.Equal(t, "111-FB", matched.Crowding.BusID)
	assert.Equal(t, BucketModerate, matched.Bucket)
	assert.False(t, matched.IsStale)

	unmatched := res.Joined[1]
	assert.Nil(t, unmatched.Crowding)
	assert.Equal(t, BucketUnknown, unmatched.Bucket)
}

func TestReconcileJoinFirstMatchWins(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{records: []CrowdingRecord{
		crowdingFixture("111-FB", 0),
		crowdingFixture("111-FB", 4),
	}}
	location := &fakeLocationFeed{records: []LocationRecord{locationFixture("111-FB")}}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), PollResult{})

	require.Len(t, res.Joined, 1)
	require.NotNil(t, res.Joined[0].Crowding)
	assert.Equal(t, 0, res.Joined[0].Crowding.Level, "duplicate keys resolve to the first occurrence in feed order")
}

func TestReconcileJoinNormalizesKey(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{records: []CrowdingRecord{crowdingFixture(" 111-fb ", 1)}}
	location := &fakeLocationFeed{records: []LocationRecord{locationFixture("111-FB")}}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), PollResult{})

	require.Len(t, res.Joined, 1)
	require.NotNil(t, res.Joined[0].Crowding, "case and padding differences must not break the join")
	assert.Equal(t, " 111-fb ", res.Joined[0].Crowding.BusID, "raw identifier stays untouched")
}

func TestReconcileCarryForwardOnSingleFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := PollResult{
		CrowdingRecords: []CrowdingRecord{crowdingFixture("111-FB", 2), crowdingFixture("222-AB", 0)},
		LocationRecords: []LocationRecord{locationFixture("OLD-01")},
	}

	crowding := &fakeCrowdingFeed{err: errors.New("blob unavailable")}
	location := &fakeLocationFeed{records: []LocationRecord{locationFixture("111-FB")}}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), prev)

	assert.Error(t, res.CrowdingErr)
	assert.NoError(t, res.LocationErr)

	// Failed feed keeps the previous cycle's data verbatim.
	assert.Equal(t, prev.CrowdingRecords, res.CrowdingRecords)
	// Successful feed is replaced wholesale.
	require.Len(t, res.LocationRecords, 1)
	assert.Equal(t, "111-FB", res.LocationRecords[0].PlateNumber)
	// And the join runs against the carried-forward crowding set.
	require.Len(t, res.Joined, 1)
	require.NotNil(t, res.Joined[0].Crowding)
}

func TestReconcileBothFeedsFailFirstCycle(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{err: errors.New("network down")}
	location := &fakeLocationFeed{err: errors.New("network down")}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), PollResult{})

	assert.Error(t, res.CrowdingErr)
	assert.Error(t, res.LocationErr)
	assert.Empty(t, res.CrowdingRecords)
	assert.Empty(t, res.LocationRecords)
	assert.Empty(t, res.Joined)
	assert.False(t, res.HasData())
	assert.Equal(t, now, res.Timestamp, "timestamp still reflects the cycle")
}

func TestReconcileIdempotentAndOrderStable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{records: []CrowdingRecord{
		crowdingFixture("111-FB", 2),
		crowdingFixture("222-AB", 0),
	}}
	location := &fakeLocationFeed{records: []LocationRecord{
		locationFixture("222-AB"),
		locationFixture("111-FB"),
		locationFixture("999-ZZ"),
	}}

	svc := newTestService(crowding, location, now)
	first := svc.Reconcile(context.Background(), PollResult{})
	second := svc.Reconcile(context.Background(), PollResult{})

	assert.Equal(t, first.CrowdingRecords, second.CrowdingRecords)
	assert.Equal(t, first.LocationRecords, second.LocationRecords)
	assert.Equal(t, first.Joined, second.Joined)
	assert.NotEqual(t, first.CycleID, second.CycleID)
}

func TestSearchTokensIncludeResolvedNames(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	crowding := &fakeCrowdingFeed{records: []CrowdingRecord{crowdingFixture("111-FB", 2)}}
	location := &fakeLocationFeed{records: []LocationRecord{locationFixture("111-FB")}}

	res := newTestService(crowding, location, now).Reconcile(context.Background(), PollResult{})

	require.Len(t, res.Joined, 1)
	tokens := res.Joined[0].SearchTokens

	// Route id 10832 resolves to route 307; provider 100 to 臺北客運. The
	// resolved names must be searchable, with 台/臺 unified.
	assert.True(t, MatchesTokens(tokens, SplitQuery("10832")))
	assert.True(t, MatchesTokens(tokens, SplitQuery("307")))
	assert.True(t, MatchesTokens(tokens, SplitQuery("台北客運")))
	assert.True(t, MatchesTokens(tokens, SplitQuery("臺北客運")))
}
