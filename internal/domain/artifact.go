package domain

import "time"

// Artifact is the Model Registry entry for a dish. At most one exists per dish.
type Artifact struct {
	ID           string
	DishID       string
	AssetURL     string
	ThumbnailURL *string
	SizeBytes    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
