package repository

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/models"
	"github.com/jorat/landing/internal/sweeper"
	"github.com/sirupsen/logrus"
)

// CodeGenerator produces the secret stored in a new session.
type CodeGenerator func() (string, error)

type OTPRepositoryConfig struct {
	Expiry        time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

// OTPRepository keeps at most one OTP session per mobile number in memory.
// All methods are safe for concurrent use; every read-modify-write on a key
// runs under a single mutex.
type OTPRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.OTPSession

	generate    CodeGenerator
	expiry      time.Duration
	maxAttempts int
	clock       clock.Clock
	sweeper     *sweeper.Sweeper
	logger      *logrus.Logger
}

func NewOTPRepository(cfg OTPRepositoryConfig, generate CodeGenerator, clk clock.Clock, logger *logrus.Logger) *OTPRepository {
	r := &OTPRepository{
		sessions:    make(map[string]*models.OTPSession),
		generate:    generate,
		expiry:      cfg.Expiry,
		maxAttempts: cfg.MaxAttempts,
		clock:       clk,
		logger:      logger,
	}
	r.sweeper = sweeper.New("otp_sessions", cfg.SweepInterval, r.Sweep, logger)
	return r
}

// Start begins the periodic removal of expired sessions.
func (r *OTPRepository) Start(ctx context.Context) {
	r.sweeper.Start(ctx)
}

// Stop halts the periodic sweep.
func (r *OTPRepository) Stop() {
	r.sweeper.Stop()
}

// Create issues a fresh code for mobile, replacing any existing session.
func (r *OTPRepository) Create(mobile string) (models.OTPSession, error) {
	code, err := r.generate()
	if err != nil {
		return models.OTPSession{}, fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := r.clock.Now()
	session := &models.OTPSession{
		Mobile:    mobile,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(r.expiry),
		Attempts:  0,
	}

	r.mu.Lock()
	r.sessions[mobile] = session
	r.mu.Unlock()

	return *session, nil
}

// Get returns a copy of the live session for mobile. A stale session is
// purged and reported as absent.
func (r *OTPRepository) Get(mobile string) (models.OTPSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.liveLocked(mobile)
	if session == nil {
		return models.OTPSession{}, false
	}
	return *session, true
}

// IncrementAttempts counts one verification attempt against the live session.
// It does nothing when there is no live session.
func (r *OTPRepository) IncrementAttempts(mobile string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session := r.liveLocked(mobile); session != nil {
		session.Attempts++
	}
}

// Verify checks code against the live session for mobile. The session is
// consumed on a match and when the attempt budget is already spent; the
// budget check happens before the comparison.
func (r *OTPRepository) Verify(mobile, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.liveLocked(mobile)
	if session == nil {
		return false
	}

	if session.Attempts >= r.maxAttempts {
		delete(r.sessions, mobile)
		r.logger.WithField("mobile", MaskMobile(mobile)).Info("OTP attempts exhausted")
		return false
	}

	if subtle.ConstantTimeCompare([]byte(session.Code), []byte(code)) == 1 {
		delete(r.sessions, mobile)
		return true
	}

	return false
}

// Delete removes any session for mobile.
func (r *OTPRepository) Delete(mobile string) {
	r.mu.Lock()
	delete(r.sessions, mobile)
	r.mu.Unlock()
}

// Sweep removes every expired session and returns how many were dropped.
func (r *OTPRepository) Sweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for mobile, session := range r.sessions {
		if !session.IsLive(now) {
			delete(r.sessions, mobile)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired ones included.
func (r *OTPRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *OTPRepository) liveLocked(mobile string) *models.OTPSession {
	session, ok := r.sessions[mobile]
	if !ok {
		return nil
	}
	if !session.IsLive(r.clock.Now()) {
		delete(r.sessions, mobile)
		return nil
	}
	return session
}

// MaskMobile hides the middle digits of a mobile number for logging.
func MaskMobile(mobile string) string {
	if len(mobile) < 7 {
		return "***"
	}
	return mobile[:4] + "***" + mobile[len(mobile)-4:]
}
