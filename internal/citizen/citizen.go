package citizen

import "time"

// Citizen is the identity record held by the registry. The provider core
// consumes these records read-only when assembling claims; account
// management lives in a separate system.
type Citizen struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Verified    bool
	Address     string
	BirthDate   string // ISO 8601 date, empty when not on record
	Country     string
	Nationality string
	Locale      string
	Zoneinfo    string
	LastLoginAt time.Time
	CreatedAt   time.Time
}

// FullName joins the name parts, tolerating records with only one part.
func (c Citizen) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
