package models

import "time"

// Plate is an authorized plate record.
type Plate struct {
	ID          int64     `json:"id"`
	PlateNumber string    `json:"plate_number"`
	AddedDate   time.Time `json:"added_date"`
}
