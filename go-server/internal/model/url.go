package model

import "time"

// URL is a short code mapping to an original URL
type URL struct {
	ID          string    `json:"id" db:"id"`
	OriginalURL string    `json:"originalUrl" db:"original_url"`
	ShortCode   string    `json:"shortCode" db:"short_code"`
	Clicks      int64     `json:"clicks" db:"clicks"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// URLUpdate holds the staged changes of an update. Nil fields are left untouched.
type URLUpdate struct {
	OriginalURL *string
	ShortCode   *string
}

// IsEmpty reports whether the update changes nothing
func (u URLUpdate) IsEmpty() bool {
	return u.OriginalURL == nil && u.ShortCode == nil
}

// DeleteResult is returned by a successful delete
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
