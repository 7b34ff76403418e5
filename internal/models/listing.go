package models

import "time"

// Listing is a sellable item owned by one seller account.
type Listing struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	UnitPrice int64     `json:"unit_price" db:"unit_price"`
	Stock     int64     `json:"stock" db:"stock"`
	Available bool      `json:"available" db:"available"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
