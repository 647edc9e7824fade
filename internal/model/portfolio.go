package model

import "time"

// Portfolio mirrors the `user_portfolios` table. UserID holds the owner's
// username, the subject carried in access tokens.
type Portfolio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Photo       string    `json:"photo,omitempty"` // base64 data or an object store URL
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Address     string    `json:"address"`
	Skills      []string  `json:"skills"`
	IsPublic    bool      `json:"isPublic"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
