package transit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The crowding feed is a static blob dump and is loose about types: numeric
// fields arrive as numbers or strings depending on the publisher's run, and
// identifier fields are sometimes absent. flexString and flexInt absorb that.

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("value %s is neither string nor number", data)
}

type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("value %s is neither int nor string", data)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("value %q is not an integer", s)
	}
	f.Value, f.Set = n, true
	return nil
}

// rawCrowding mirrors one element of the crowding feed payload.
type rawCrowding struct {
	RouteID      flexString `json:"RouteID"`
	BusID        flexString `json:"BusID"`
	ProviderID   flexString `json:"ProviderID"`
	StopID       flexString `json:"StopID"`
	GoBack       flexInt    `json:"GoBack"`
	Level        flexInt    `json:"Level"`
	RemainingNum flexInt    `json:"RemainingNum"`
	DataTime     string     `json:"DataTime"`
}

// rawLocation mirrors one element of the TDX RealTimeByFrequency payload.
type rawLocation struct {
	PlateNumb flexString `json:"PlateNumb"`
	RouteName struct {
		ZhTw string `json:"Zh_tw"`
	} `json:"RouteName"`
	Direction   flexInt  `json:"Direction"`
	Speed       *float64 `json:"Speed"`
	BusPosition struct {
		PositionLat *float64 `json:"PositionLat"`
		PositionLon *float64 `json:"PositionLon"`
	} `json:"BusPosition"`
	SrcUpdateTime string `json:"SrcUpdateTime"`
}

// taipeiZone is the fallback zone for feed timestamps without an offset.
var taipeiZone = time.FixedZone("Asia/Taipei", 8*60*60)

var feedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseFeedTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, taipeiZone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func orUnknown(s flexString) string {
	if v := strings.TrimSpace(string(s)); v != "" {
		return v
	}
	return UnknownID
}

func directionFromGoBack(v flexInt) Direction {
	if v.Set && v.Value == 1 {
		return DirectionInbound
	}
	return DirectionOutbound
}

// UnmarshalCrowdingFeed decodes the crowding feed payload and normalizes each
// element into a CrowdingRecord. Identifier fields default to "Unknown", the
// level defaults to -1, and a missing DataTime defaults to now (matching the
// upstream publisher's own convention for freshly created rows).
func UnmarshalCrowdingFeed(data []byte, now time.Time) ([]CrowdingRecord, error) {
	var raw []rawCrowding
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode crowding feed: %w", err)
	}

	records := make([]CrowdingRecord, 0, len(raw))
	for _, item := range raw {
		rec := CrowdingRecord{
			RouteID:    orUnknown(item.RouteID),
			BusID:      orUnknown(item.BusID),
			ProviderID: orUnknown(item.ProviderID),
			StopID:     orUnknown(item.StopID),
			Direction:  directionFromGoBack(item.GoBack),
			Level:      -1,
		}
		if item.Level.Set {
			rec.Level = item.Level.Value
		}
		if item.RemainingNum.Set && item.RemainingNum.Value >= 0 {
			seats := item.RemainingNum.Value
			rec.RemainingSeats = &seats
		}
		if t, ok := parseFeedTime(item.DataTime); ok {
			rec.DataTime = t
		} else {
			rec.DataTime = now
		}
		records = append(records, rec)
	}
	return records, nil
}

// UnmarshalLocationFeed decodes the realtime location payload into normalized
// LocationRecords. Records with missing coordinates are kept (they count in
// totals) but are not Plottable.
func UnmarshalLocationFeed(data []byte) ([]LocationRecord, error) {
	var raw []rawLocation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode location feed: %w", err)
	}

	records := make([]LocationRecord, 0, len(raw))
	for _, item := range raw {
		rec := LocationRecord{
			PlateNumber: orUnknown(item.PlateNumb),
			RouteName:   strings.TrimSpace(item.RouteName.ZhTw),
			Direction:   directionFromGoBack(item.Direction),
			Latitude:    item.BusPosition.PositionLat,
			Longitude:   item.BusPosition.PositionLon,
		}
		if item.Speed != nil && *item.Speed >= 0 {
			rec.Speed = item.Speed
		}
		if t, ok := parseFeedTime(item.SrcUpdateTime); ok {
			rec.SourceUpdateTime = t
		}
		records = append(records, rec)
	}
	return records, nil
}
