package transit

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taipei-transit/crowding-dashboard/internal/refdata"
)

// CrowdingFetcher yields the current crowding feed contents.
type CrowdingFetcher interface {
	FetchCrowding(ctx context.Context) ([]CrowdingRecord, error)
}

// LocationFetcher yields the current realtime positions for a city.
type LocationFetcher interface {
	FetchLocations(ctx context.Context, city string) ([]LocationRecord, error)
}

// Service runs the reconciliation pipeline: fetch both feeds concurrently,
// normalize, carry forward on failure, derive presentation fields, and join
// locations to crowding reports by vehicle identifier.
type Service struct {
	crowding CrowdingFetcher
	location LocationFetcher
	tables   *refdata.Tables
	city     string

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a Service for one city.
func NewService(crowding CrowdingFetcher, location LocationFetcher, tables *refdata.Tables, city string) *Service {
	return &Service{
		crowding: crowding,
		location: location,
		tables:   tables,
		city:     city,
		now:      time.Now,
	}
}

// Reconcile runs one cycle. It never returns an error: per-feed failures land
// in the result's error slots and the failed feed's records are carried
// forward from prev unchanged. Successful feeds replace their record set
// wholesale; there is no incremental merge.
func (s *Service) Reconcile(ctx context.Context, prev PollResult) PollResult {
	res := PollResult{CycleID: uuid.NewString()}

	var (
		wg       sync.WaitGroup
		crowding []CrowdingRecord
		location []LocationRecord
	)

	// Both fetches settle independently; one feed failing must not abort
	// the other. Each goroutine writes only its own slots.
	wg.Add(2)
	go func() {
		defer wg.Done()
		crowding, res.CrowdingErr = s.crowding.FetchCrowding(ctx)
	}()
	go func() {
		defer wg.Done()
		location, res.LocationErr = s.location.FetchLocations(ctx, s.city)
	}()
	wg.Wait()

	if res.CrowdingErr != nil {
		log.Printf("reconcile %s: crowding fetch failed: %v", res.CycleID, res.CrowdingErr)
		crowding = prev.CrowdingRecords
	}
	if res.LocationErr != nil {
		log.Printf("reconcile %s: location fetch failed: %v", res.CycleID, res.LocationErr)
		location = prev.LocationRecords
	}

	res.CrowdingRecords = crowding
	res.LocationRecords = location
	res.Timestamp = s.now()
	res.Joined = s.join(location, crowding, res.Timestamp)
	return res
}

// joinKey normalizes a vehicle identifier before comparison. The two feeds
// disagree on casing and padding for some operators, so both sides are
// trimmed and upper-cased; the raw identifiers on the records stay untouched.
func joinKey(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// join builds one JoinedView per location record. The match is best-effort
// many-to-zero-or-one on plate number vs bus id; when the key is duplicated
// in the crowding feed the first occurrence in feed order wins.
func (s *Service) join(locations []LocationRecord, crowding []CrowdingRecord, now time.Time) []JoinedView {
	byBus := make(map[string]*CrowdingRecord, len(crowding))
	for i := range crowding {
		key := joinKey(crowding[i].BusID)
		if _, seen := byBus[key]; !seen {
			byBus[key] = &crowding[i]
		}
	}

	joined := make([]JoinedView, 0, len(locations))
	for _, loc := range locations {
		view := JoinedView{
			Location: loc,
			Crowding: byBus[joinKey(loc.PlateNumber)],
			IsStale:  IsStale(now, loc.SourceUpdateTime),
			Bucket:   BucketUnknown,
		}
		if view.Crowding != nil {
			view.Bucket = BucketForLevel(view.Crowding.Level)
		}
		view.SearchTokens = s.searchTokens(loc, view.Crowding)
		joined = append(joined, view)
	}
	return joined
}

// searchTokens collects the canonicalized fields the filter predicate matches
// against: identifiers plus their resolved display names.
func (s *Service) searchTokens(loc LocationRecord, crowd *CrowdingRecord) []string {
	tokens := make([]string, 0, 8)
	tokens = appendToken(tokens, loc.RouteName)
	tokens = appendToken(tokens, loc.PlateNumber)
	if crowd != nil {
		tokens = appendToken(tokens, crowd.RouteID)
		tokens = appendToken(tokens, crowd.BusID)
		tokens = appendToken(tokens, crowd.ProviderID)
		tokens = appendToken(tokens, s.tables.RouteName(crowd.RouteID))
		tokens = appendToken(tokens, s.tables.ProviderName(crowd.ProviderID))
	}
	return tokens
}

// CrowdingSearchTokens exposes the token set for a bare crowding record, used
// by the table endpoint when a vehicle has no live position.
func (s *Service) CrowdingSearchTokens(rec CrowdingRecord) []string {
	tokens := make([]string, 0, 5)
	tokens = appendToken(tokens, rec.RouteID)
	tokens = appendToken(tokens, rec.BusID)
	tokens = appendToken(tokens, rec.ProviderID)
	tokens = appendToken(tokens, s.tables.RouteName(rec.RouteID))
	tokens = appendToken(tokens, s.tables.ProviderName(rec.ProviderID))
	return tokens
}
