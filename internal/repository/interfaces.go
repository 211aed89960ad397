package repository

import "gatekeeper/internal/models"

// PlateRepository defines the authorization store operations the gate
// controller performs: point lookups plus the movement log append. Schema
// administration beyond migrate-on-open lives in cmd/setupdb.
type PlateRepository interface {
	IsAuthorized(plate string) (bool, error)
	LogMovement(plate, action string) error

	AddPlate(plate string) error
	ListPlates() ([]models.Plate, error)

	Close() error
}
