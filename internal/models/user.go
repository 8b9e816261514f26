package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // pq.StringArray for text[] columns
	"gorm.io/gorm"
)

// User is an account row of the local stub server.
type User struct {
	ID           string         `gorm:"primaryKey" json:"id"` // UUID
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Username     string         `gorm:"not null" json:"username"`
	PhotoURL     *string        `json:"photo_url"`
	City         *string        `json:"city"`
	Latitude     *float64       `json:"latitude"`
	Longitude    *float64       `json:"longitude"`
	Timezone     *string        `json:"timezone"`
	Interests    pq.StringArray `gorm:"type:text[]" json:"interests"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BeforeCreate is a GORM hook that assigns a UUID when ID is empty.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Profile converts the row to the GET /users/me body.
func (u *User) Profile() Profile {
	interests := []string(u.Interests)
	if interests == nil {
		interests = []string{}
	}
	return Profile{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		PhotoURL:         u.PhotoURL,
		Interests:        interests,
		City:             u.City,
		ProfileCompleted: u.Username != "" && len(interests) > 0,
		CreatedAt:        u.CreatedAt,
	}
}

// LocationUpdate is the body of PUT /users/me/location.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Timezone  string  `json:"timezone"`
}

// Valid reports whether the coordinates are on the globe.
func (l LocationUpdate) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}
