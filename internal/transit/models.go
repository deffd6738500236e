package transit

import (
	"time"
)

// Direction of travel as reported by both feeds (GoBack / Direction fields).
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// CrowdingBucket is the aggregate classification used by the dashboard charts.
type CrowdingBucket string

const (
	BucketComfortable CrowdingBucket = "comfortable"
	BucketModerate    CrowdingBucket = "moderate"
	BucketCrowded     CrowdingBucket = "crowded"
	BucketUnknown     CrowdingBucket = "unknown"
)

// UnknownID is substituted for identifier fields the source omits.
const UnknownID = "Unknown"

// CrowdingRecord is one vehicle's occupancy report from the crowding feed,
// normalized. Records are created fresh on every poll tick and never mutated;
// the next tick's array supersedes them wholesale.
type CrowdingRecord struct {
	RouteID    string    `json:"routeId"`
	BusID      string    `json:"busId"`
	ProviderID string    `json:"providerId"`
	StopID     string    `json:"stopId"`
	Direction  Direction `json:"direction"`

	// Level is the reported crowding level 0-4, or -1 when unknown.
	Level int `json:"crowdingLevel"`

	// RemainingSeats is nil when the source omits it.
	RemainingSeats *int `json:"remainingSeats,omitempty"`

	DataTime time.Time `json:"dataTime"`
}

// LocationRecord is one vehicle's live position from the realtime feed,
// normalized. Same lifecycle as CrowdingRecord: full replacement each tick.
type LocationRecord struct {
	PlateNumber string    `json:"plateNumber"`
	RouteName   string    `json:"routeName"`
	Direction   Direction `json:"direction"`

	// Latitude/Longitude are nil when the source value is missing or not
	// numeric. Such records are excluded from the map but still counted.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Speed in km/h; nil when not reported.
	Speed *float64 `json:"speed,omitempty"`

	SourceUpdateTime time.Time `json:"sourceUpdateTime"`
}

// Plottable reports whether the record carries coordinates usable on a map.
func (l LocationRecord) Plottable() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// JoinedView combines a LocationRecord with its matching CrowdingRecord plus
// derived presentation fields. Crowding is nil when no crowding report matched
// the vehicle's plate number.
type JoinedView struct {
	Location LocationRecord  `json:"location"`
	Crowding *CrowdingRecord `json:"crowdingInfo"`

	IsStale bool           `json:"isStale"`
	Bucket  CrowdingBucket `json:"crowdingBucket"`

	// SearchTokens are canonicalized lowercase strings the search predicate
	// matches against.
	SearchTokens []string `json:"-"`
}

// PollResult is the snapshot produced by one reconciliation cycle.
type PollResult struct {
	// CycleID correlates log lines belonging to one cycle.
	CycleID string

	CrowdingRecords []CrowdingRecord
	LocationRecords []LocationRecord
	Joined          []JoinedView

	// Timestamp is the wall-clock completion time of the cycle.
	Timestamp time.Time

	// Per-feed errors for this cycle. Failures are data, not control flow:
	// a cycle always yields a PollResult.
	CrowdingErr error
	LocationErr error
}

// HasData reports whether the snapshot carries any records, current or
// carried forward.
func (r PollResult) HasData() bool {
	return len(r.CrowdingRecords) > 0 || len(r.LocationRecords) > 0
}
