package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCrowdingFeedDefaults(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Source omits every identifier, the level and the timestamp.
	records, err := UnmarshalCrowdingFeed([]byte(`[{}]`), now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, UnknownID, rec.RouteID)
	assert.Equal(t, UnknownID, rec.BusID)
	assert.Equal(t, UnknownID, rec.ProviderID)
	assert.Equal(t, UnknownID, rec.StopID)
	assert.Equal(t, -1, rec.Level)
	assert.Nil(t, rec.RemainingSeats)
	assert.Equal(t, now, rec.DataTime)
	assert.Equal(t, DirectionOutbound, rec.Direction)
}

func TestUnmarshalCrowdingFeedScenario(t *testing.T) {
	payload := `[{"RouteID":"10832","BusID":"111-FB","ProviderID":"100","Level":2,"RemainingNum":"5","DataTime":"2024-01-01T00:00:00Z"}]`
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	records, err := UnmarshalCrowdingFeed([]byte(payload), now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "10832", rec.RouteID)
	assert.Equal(t, "111-FB", rec.BusID)
	assert.Equal(t, "100", rec.ProviderID)
	assert.Equal(t, BucketModerate, BucketForLevel(rec.Level))
	require.NotNil(t, rec.RemainingSeats)
	assert.Equal(t, 5, *rec.RemainingSeats)
	assert.True(t, IsStale(now, rec.DataTime), "a months-old report must be flagged stale")
}

func TestUnmarshalCrowdingFeedFlexibleTypes(t *testing.T) {
	// Numeric ids and a numeric RemainingNum appear in some publisher runs.
	payload := `[{"RouteID":10832,"BusID":"111-FB","ProviderID":100,"GoBack":1,"Level":"3","RemainingNum":0}]`

	records, err := UnmarshalCrowdingFeed([]byte(payload), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "10832", rec.RouteID)
	assert.Equal(t, "100", rec.ProviderID)
	assert.Equal(t, DirectionInbound, rec.Direction)
	assert.Equal(t, 3, rec.Level)
	require.NotNil(t, rec.RemainingSeats)
	assert.Equal(t, 0, *rec.RemainingSeats)
}

func TestUnmarshalCrowdingFeedBadPayload(t *testing.T) {
	_, err := UnmarshalCrowdingFeed([]byte(`{"not":"an array"}`), time.Now())
	assert.Error(t, err)
}

func TestUnmarshalLocationFeed(t *testing.T) {
	payload := `[
		{"PlateNumb":"111-FB","RouteName":{"Zh_tw":"307"},"Direction":1,"Speed":32.5,
		 "BusPosition":{"PositionLat":25.0478,"PositionLon":121.517},
		 "SrcUpdateTime":"2024-01-01T00:00:00+08:00"},
		{"PlateNumb":"999-ZZ","RouteName":{"Zh_tw":"262區"}}
	]`

	records, err := UnmarshalLocationFeed([]byte(payload))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "111-FB", first.PlateNumber)
	assert.Equal(t, "307", first.RouteName)
	assert.Equal(t, DirectionInbound, first.Direction)
	require.True(t, first.Plottable())
	assert.InDelta(t, 25.0478, *first.Latitude, 1e-9)
	assert.InDelta(t, 121.517, *first.Longitude, 1e-9)
	require.NotNil(t, first.Speed)
	assert.InDelta(t, 32.5, *first.Speed, 1e-9)
	assert.False(t, first.SourceUpdateTime.IsZero())

	// Missing coordinates: still a record, just not plottable.
	second := records[1]
	assert.Equal(t, "999-ZZ", second.PlateNumber)
	assert.False(t, second.Plottable())
	assert.Nil(t, second.Speed)
	assert.True(t, second.SourceUpdateTime.IsZero())
}
