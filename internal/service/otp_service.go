package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/models"
	"github.com/jorat/landing/internal/repository"
	"github.com/jorat/landing/internal/sms"
	"github.com/jorat/landing/internal/validation"
	"github.com/sirupsen/logrus"
)

type SessionStore interface {
	Create(mobile string) (models.OTPSession, error)
	IncrementAttempts(mobile string)
	Verify(mobile, code string) bool
	Delete(mobile string)
}

type LeadRecorder interface {
	RecordVerification(ctx context.Context, mobile string, at time.Time) (*models.Lead, error)
}

type TokenIssuer interface {
	Issue(mobile string) (*models.DownloadToken, error)
}

type SendOTPInput struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

type VerifyOTPInput struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
	Code   string `json:"code" validate:"required,otpcode"`
}

type VerifyResult struct {
	Verified      bool
	DownloadToken *models.DownloadToken
}

// OTPService runs the issuance and verification protocol on top of the
// session store, the rate limiter and the SMS sender.
type OTPService struct {
	store     SessionStore
	limiter   RateLimiter
	sender    sms.Sender
	leads     LeadRecorder
	tokens    TokenIssuer
	validator *validation.Validator
	clock     clock.Clock
	logger    *logrus.Logger
}

type OTPServiceDeps struct {
	Store     SessionStore
	Limiter   RateLimiter
	Sender    sms.Sender
	Leads     LeadRecorder // optional
	Tokens    TokenIssuer
	Validator *validation.Validator
	Clock     clock.Clock
	Logger    *logrus.Logger
}

func NewOTPService(deps OTPServiceDeps) *OTPService {
	return &OTPService{
		store:     deps.Store,
		limiter:   deps.Limiter,
		sender:    deps.Sender,
		leads:     deps.Leads,
		tokens:    deps.Tokens,
		validator: deps.Validator,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// SendOTP issues a new code for mobile and hands it to the SMS sender.
// A failed dispatch removes the session it just created, so an undelivered
// code never stays guessable.
func (s *OTPService) SendOTP(ctx context.Context, in SendOTPInput) error {
	if err := s.validate(in); err != nil {
		return err
	}

	log := s.logger.WithField("mobile", repository.MaskMobile(in.Mobile))

	allowed, err := s.limiter.Allow(ctx, in.Mobile)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !allowed {
		log.Warn("OTP request rate limited")
		return ErrRateLimited
	}

	session, err := s.store.Create(in.Mobile)
	if err != nil {
		return fmt.Errorf("failed to create otp session: %w", err)
	}

	// The client hanging up must not abort a dispatch already under way;
	// the sender's own timeout bounds it.
	if err := s.sender.SendOTP(context.WithoutCancel(ctx), in.Mobile, session.Code); err != nil {
		s.store.Delete(in.Mobile)
		log.WithError(err).Error("Failed to send OTP SMS")
		return &DispatchError{Err: err}
	}

	log.Info("OTP sent")
	return nil
}

// VerifyOTP counts the attempt, then checks the code. A wrong, expired or
// exhausted code is a normal negative result, not an error.
func (s *OTPService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*VerifyResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	s.store.IncrementAttempts(in.Mobile)

	if !s.store.Verify(in.Mobile, in.Code) {
		return &VerifyResult{Verified: false}, nil
	}

	log := s.logger.WithField("mobile", repository.MaskMobile(in.Mobile))
	log.Info("OTP verified")

	if s.leads != nil {
		if _, err := s.leads.RecordVerification(ctx, in.Mobile, s.clock.Now()); err != nil {
			log.WithError(err).Warn("Failed to record verified lead")
		}
	}

	token, err := s.tokens.Issue(in.Mobile)
	if err != nil {
		return nil, fmt.Errorf("failed to issue download token: %w", err)
	}

	return &VerifyResult{
		Verified:      true,
		DownloadToken: token,
	}, nil
}

func (s *OTPService) validate(in any) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}

	var fe *validation.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Message: fe.Message}
	}
	return fmt.Errorf("failed to validate request: %w", err)
}
