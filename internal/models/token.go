package models

import "time"

type DownloadToken struct {
	Token     string    `json:"token"`
	JTI       string    `json:"jti"`
	Mobile    string    `json:"mobile"`
	ExpiresAt time.Time `json:"expires_at"`
}
