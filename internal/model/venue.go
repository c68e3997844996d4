package model

// Venue is a facility made of one or more courts.  Venues and courts are
// static reference data for the booking engine.
type Venue struct {
	ID          int64  // venues.id
	Name        string // venues.name
	IsOutdoor   bool   // venues.is_outdoor
	Location    string // venues.location
	Description string // venues.description
}

// Court belongs to exactly one venue.
type Court struct {
	ID      int64  // courts.id
	VenueID int64  // courts.venue_id
	Name    string // courts.name
}
