package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
)

// VenueRepo reads the static venue/court hierarchy.  The insert methods
// exist for seeding and tests; the booking engine never writes venues.
type VenueRepo struct{ DB *sql.DB }

func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{DB: db} }

// Create inserts a venue and returns its id.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) (int64, error) {
	return insertID(r.DB.ExecContext(ctx,
		"INSERT INTO venues (name, is_outdoor, location, description) VALUES (?,?,?,?)",
		v.Name, v.IsOutdoor, v.Location, v.Description))
}

// CreateCourt inserts a court under its venue and returns its id.
func (r *VenueRepo) CreateCourt(ctx context.Context, c *model.Court) (int64, error) {
	return insertID(r.DB.ExecContext(ctx,
		"INSERT INTO courts (venue_id, name) VALUES (?,?)", c.VenueID, c.Name))
}

// GetByID returns a venue or ErrNotFound.
func (r *VenueRepo) GetByID(ctx context.Context, id int64) (*model.Venue, error) {
	return getVenue(ctx, r.DB, id)
}

// GetByIDTx is GetByID inside tx.
func (r *VenueRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Venue, error) {
	return getVenue(ctx, tx, id)
}

func getVenue(ctx context.Context, q querier, id int64) (*model.Venue, error) {
	var v model.Venue
	err := q.QueryRowContext(ctx,
		"SELECT id, name, is_outdoor, location, description FROM venues WHERE id = ?", id).
		Scan(&v.ID, &v.Name, &v.IsOutdoor, &v.Location, &v.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select venue: %w", err)
	}
	return &v, nil
}

// List returns all venues ordered by name.
func (r *VenueRepo) List(ctx context.Context) ([]model.Venue, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, is_outdoor, location, description FROM venues ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("select venues: %w", err)
	}
	defer rows.Close()
	out := make([]model.Venue, 0)
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.IsOutdoor, &v.Location, &v.Description); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListCourts returns the courts of a venue ordered by id.
func (r *VenueRepo) ListCourts(ctx context.Context, venueID int64) ([]model.Court, error) {
	return listCourts(ctx, r.DB, venueID)
}

// ListCourtsTx is ListCourts inside tx.
func (r *VenueRepo) ListCourtsTx(ctx context.Context, tx *sql.Tx, venueID int64) ([]model.Court, error) {
	return listCourts(ctx, tx, venueID)
}

func listCourts(ctx context.Context, q querier, venueID int64) ([]model.Court, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, venue_id, name FROM courts WHERE venue_id = ? ORDER BY id", venueID)
	if err != nil {
		return nil, fmt.Errorf("select courts: %w", err)
	}
	defer rows.Close()
	out := make([]model.Court, 0)
	for rows.Next() {
		var c model.Court
		if err := rows.Scan(&c.ID, &c.VenueID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
