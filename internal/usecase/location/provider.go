// Package location reads player positions persisted by the exploration
// subsystem. This terminal never writes positions, it only resolves the
// last known one for range checks.
package location

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"comm-terminal/internal/domain/message"
	appErrors "comm-terminal/pkg/errors"
	"comm-terminal/pkg/geo"
)

type restAPI interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// positionRow is the player_positions wire shape.
type positionRow struct {
	UserID     uuid.UUID    `json:"user_id"`
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	RecordedAt message.Time `json:"recorded_at"`
}

type Provider struct {
	rest restAPI
}

func NewProvider(rest restAPI) *Provider {
	return &Provider{rest: rest}
}

// LastKnownLocation returns the most recent persisted position for the
// player, however old it is. Staleness policy belongs to the caller.
func (p *Provider) LastKnownLocation(ctx context.Context, userID uuid.UUID) (geo.Point, time.Time, error) {
	q := url.Values{}
	q.Set("user_id", userID.String())
	q.Set("order", "recorded_at.desc")
	q.Set("limit", "1")

	data, err := p.rest.Get(ctx, "player_positions", q)
	if err != nil {
		return geo.Point{}, time.Time{}, err
	}

	raws, err := message.SplitRecords(data)
	if err != nil {
		return geo.Point{}, time.Time{}, appErrors.NewDecodingError("malformed player_positions response", err)
	}
	rows, _ := message.DecodeRecords[positionRow](raws)
	if len(rows) == 0 {
		return geo.Point{}, time.Time{}, appErrors.NewValidationError("no position recorded for player", nil)
	}

	row := rows[0]
	return geo.Point{Latitude: row.Latitude, Longitude: row.Longitude}, row.RecordedAt.Time, nil
}
