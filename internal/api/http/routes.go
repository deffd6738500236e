package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/taipei-transit/crowding-dashboard/internal/auth"
	"github.com/taipei-transit/crowding-dashboard/internal/refdata"
	"github.com/taipei-transit/crowding-dashboard/internal/store"
	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

var validate = validator.New()

// Options carries the collaborators the HTTP handlers read from.
type Options struct {
	Snapshots *store.SnapshotStore
	Service   *transit.Service
	Tables    *refdata.Tables
	Tokens    *auth.TokenSource

	// Loading reports whether the first cycle has yet to complete.
	Loading func() bool
	// Refresh runs an out-of-band cycle.
	Refresh func()

	// Now is swappable for tests.
	Now func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, opts Options) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	app.Get("/api/token", tokenRelayHandler(opts))
	// The relay contract promises an {error} body on non-GET methods, so
	// these must not fall through to the app-wide error handler.
	app.All("/api/token", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
			"error": "Method Not Allowed",
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/dashboard", dashboardHandler(opts))
	v1.Get("/crowding", crowdingTableHandler(opts))
	v1.Get("/vehicles", vehiclesHandler(opts))
	v1.Get("/summary", summaryHandler(opts))
	v1.Get("/markers", markersHandler(opts))
	v1.Post("/refresh", refreshHandler(opts))
}

// tokenRelayHandler proxies the client-credentials exchange so the browser
// never sees the client secret. The issuer's success body is returned
// verbatim; issuer rejections propagate their status and error text.
func tokenRelayHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, body, err := opts.Tokens.Exchange(c.Context())
		if err != nil {
			if errors.Is(err, auth.ErrMissingCredentials) {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "server misconfiguration: missing client credentials",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}

		if status < 200 || status >= 300 {
			return c.Status(status).JSON(fiber.Map{
				"error": "token issuer error: " + strings.TrimSpace(string(body)),
			})
		}

		// Let shared caches reuse the token response for most of its
		// 24h lifetime.
		c.Set(fiber.HeaderCacheControl, "s-maxage=3600, stale-while-revalidate")
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(body)
	}
}

// feedNotice converts a per-feed error into a user-facing notice string.
func feedNotice(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func dashboardHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := opts.Snapshots.Latest()
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"loading": opts.Loading(),
				"message": "no data yet; first poll cycle has not completed",
			})
		}

		plottable := 0
		for _, loc := range res.LocationRecords {
			if loc.Plottable() {
				plottable++
			}
		}

		return c.JSON(fiber.Map{
			"cycleId":     res.CycleID,
			"timestamp":   res.Timestamp,
			"lastUpdated": res.Timestamp.In(taipeiZone()).Format("15:04:05"),
			"loading":     opts.Loading(),
			"counts": fiber.Map{
				"crowding":  len(res.CrowdingRecords),
				"location":  len(res.LocationRecords),
				"joined":    len(res.Joined),
				"plottable": plottable,
			},
			"notices": fiber.Map{
				"crowding": feedNotice(res.CrowdingErr),
				"location": feedNotice(res.LocationErr),
			},
		})
	}
}

// tableQuery holds the filter parameters shared by the table endpoints.
type tableQuery struct {
	Q         string
	Direction string `validate:"omitempty,oneof=outbound inbound"`
}

func parseTableQuery(c *fiber.Ctx) (tableQuery, error) {
	q := tableQuery{
		Q:         c.Query("q"),
		Direction: c.Query("direction"),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// crowdingRow is one row of the occupancy table.
type crowdingRow struct {
	RouteID        string                 `json:"routeId"`
	RouteName      string                 `json:"routeName"`
	Destination    string                 `json:"destination"`
	BusID          string                 `json:"busId"`
	ProviderID     string                 `json:"providerId"`
	ProviderName   string                 `json:"providerName"`
	StopID         string                 `json:"stopId"`
	StopName       string                 `json:"stopName"`
	Direction      transit.Direction      `json:"direction"`
	Level          int                    `json:"crowdingLevel"`
	Bucket         transit.CrowdingBucket `json:"crowdingBucket"`
	RemainingSeats *int                   `json:"remainingSeats,omitempty"`
	DataTime       time.Time              `json:"dataTime"`
	TimeAgo        string                 `json:"timeAgo"`
	IsStale        bool                   `json:"isStale"`
}

func crowdingTableHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseTableQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := opts.Snapshots.Latest()
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no data yet")
		}

		terms := transit.SplitQuery(q.Q)
		now := opts.Now()

		rows := make([]crowdingRow, 0, len(res.CrowdingRecords))
		for _, rec := range res.CrowdingRecords {
			if q.Direction != "" && string(rec.Direction) != q.Direction {
				continue
			}
			if !transit.MatchesTokens(opts.Service.CrowdingSearchTokens(rec), terms) {
				continue
			}
			rows = append(rows, crowdingRow{
				RouteID:        rec.RouteID,
				RouteName:      opts.Tables.RouteName(rec.RouteID),
				Destination:    destinationFor(opts.Tables, rec.RouteID, rec.Direction),
				BusID:          rec.BusID,
				ProviderID:     rec.ProviderID,
				ProviderName:   opts.Tables.ProviderName(rec.ProviderID),
				StopID:         rec.StopID,
				StopName:       opts.Tables.StopName(rec.StopID),
				Direction:      rec.Direction,
				Level:          rec.Level,
				Bucket:         transit.BucketForLevel(rec.Level),
				RemainingSeats: rec.RemainingSeats,
				DataTime:       rec.DataTime,
				TimeAgo:        transit.FormatTimeAgo(now, rec.DataTime),
				IsStale:        transit.IsStale(now, rec.DataTime),
			})
		}

		return c.JSON(fiber.Map{
			"timestamp": res.Timestamp,
			"total":     len(res.CrowdingRecords),
			"matched":   len(rows),
			"rows":      rows,
		})
	}
}

func vehiclesHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseTableQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := opts.Snapshots.Latest()
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no data yet")
		}

		terms := transit.SplitQuery(q.Q)

		views := make([]transit.JoinedView, 0, len(res.Joined))
		for _, view := range res.Joined {
			if q.Direction != "" && string(view.Location.Direction) != q.Direction {
				continue
			}
			if !transit.MatchesTokens(view.SearchTokens, terms) {
				continue
			}
			views = append(views, view)
		}

		return c.JSON(fiber.Map{
			"timestamp": res.Timestamp,
			"total":     len(res.Joined),
			"matched":   len(views),
			"vehicles":  views,
		})
	}
}

func summaryHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := opts.Snapshots.Latest()
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no data yet")
		}

		now := opts.Now()
		buckets := map[transit.CrowdingBucket]int{
			transit.BucketComfortable: 0,
			transit.BucketModerate:    0,
			transit.BucketCrowded:     0,
			transit.BucketUnknown:     0,
		}
		stale := 0
		for _, rec := range res.CrowdingRecords {
			buckets[transit.BucketForLevel(rec.Level)]++
			if transit.IsStale(now, rec.DataTime) {
				stale++
			}
		}

		withCrowding := 0
		for _, view := range res.Joined {
			if view.Crowding != nil {
				withCrowding++
			}
		}

		return c.JSON(fiber.Map{
			"timestamp":        res.Timestamp,
			"total":            len(res.CrowdingRecords),
			"buckets":          buckets,
			"stale":            stale,
			"joinedWithStatus": withCrowding,
		})
	}
}

// marker is one plottable vehicle for the map layer.
type marker struct {
	PlateNumber string                 `json:"plateNumber"`
	RouteName   string                 `json:"routeName"`
	Direction   transit.Direction      `json:"direction"`
	Latitude    float64                `json:"latitude"`
	Longitude   float64                `json:"longitude"`
	Speed       *float64               `json:"speed,omitempty"`
	Bucket      transit.CrowdingBucket `json:"crowdingBucket"`
	UpdatedAgo  string                 `json:"updatedAgo"`
	IsStale     bool                   `json:"isStale"`
}

func markersHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := opts.Snapshots.Latest()
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no data yet")
		}

		now := opts.Now()
		markers := make([]marker, 0, len(res.Joined))
		for _, view := range res.Joined {
			loc := view.Location
			if !loc.Plottable() {
				continue
			}
			markers = append(markers, marker{
				PlateNumber: loc.PlateNumber,
				RouteName:   loc.RouteName,
				Direction:   loc.Direction,
				Latitude:    *loc.Latitude,
				Longitude:   *loc.Longitude,
				Speed:       loc.Speed,
				Bucket:      view.Bucket,
				UpdatedAgo:  transit.FormatTimeAgo(now, loc.SourceUpdateTime),
				IsStale:     view.IsStale,
			})
		}

		return c.JSON(fiber.Map{
			"timestamp": res.Timestamp,
			"total":     len(res.Joined),
			"plottable": len(markers),
			"markers":   markers,
		})
	}
}

func refreshHandler(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts.Refresh()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "refresh triggered",
		})
	}
}

func destinationFor(tables *refdata.Tables, routeID string, dir transit.Direction) string {
	info, ok := tables.RouteInfo(routeID)
	if !ok {
		return ""
	}
	if dir == transit.DirectionInbound {
		return info.Inbound
	}
	return info.Outbound
}

func taipeiZone() *time.Location {
	return time.FixedZone("Asia/Taipei", 8*60*60)
}
