package models

import (
	"time"
)

// Lead is a mobile number that completed OTP verification.
type Lead struct {
	Mobile        string    `json:"mobile" dynamodbav:"mobile"`
	Verifications int       `json:"verifications" dynamodbav:"verifications"`
	FirstVerified time.Time `json:"first_verified" dynamodbav:"first_verified"`
	LastVerified  time.Time `json:"last_verified" dynamodbav:"last_verified"`
}

func (l *Lead) GetPK() string {
	return "LEAD#" + l.Mobile
}

func (l *Lead) GetSK() string {
	return "METADATA"
}
