package models

import "time"

type OTPSession struct {
	Mobile    string    `json:"mobile"`
	Code      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// IsLive reports whether the session is still usable at now.
func (s *OTPSession) IsLive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

type RateLimitWindow struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

func (w *RateLimitWindow) IsLive(now time.Time) bool {
	return now.Before(w.ResetAt)
}
