package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jorat/landing/internal/service"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 10

const (
	msgOTPSent        = "کد تایید با موفقیت ارسال شد"
	msgInvalidMobile  = "شماره موبایل نامعتبر است"
	msgInvalidInput   = "داده‌های ورودی نامعتبر است"
	msgRateLimited    = "تعداد درخواست‌های شما بیش از حد مجاز است. لطفا ۵ دقیقه بعد تلاش کنید"
	msgDispatchFailed = "خطا در ارسال پیامک. لطفا دوباره تلاش کنید"
	msgServerError    = "خطای سرور. لطفا دوباره تلاش کنید"
	msgVerified       = "تایید موفقیت‌آمیز بود"
	msgWrongOrExpired = "کد تایید اشتباه است یا منقضی شده است"
)

type OTPHandlers struct {
	otpService *service.OTPService
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService *service.OTPService, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		logger:     logger,
	}
}

type SendOTPRequest struct {
	Mobile string `json:"mobile"`
}

type SendOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyOTPRequest struct {
	Mobile string `json:"mobile"`
	Code   string `json:"code"`
}

type VerifyOTPResponse struct {
	Success       bool   `json:"success"`
	Verified      bool   `json:"verified"`
	Message       string `json:"message"`
	DownloadToken string `json:"downloadToken,omitempty"`
}

func (h *OTPHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, SendOTPResponse{Message: msgInvalidMobile})
		return
	}

	err := h.otpService.SendOTP(r.Context(), service.SendOTPInput{Mobile: req.Mobile})
	if err == nil {
		respondWithJSON(w, http.StatusOK, SendOTPResponse{Success: true, Message: msgOTPSent})
		return
	}

	var ve *service.ValidationError
	var de *service.DispatchError
	switch {
	case errors.As(err, &ve):
		respondWithJSON(w, http.StatusBadRequest, SendOTPResponse{Message: ve.Message})
	case errors.Is(err, service.ErrRateLimited):
		respondWithJSON(w, http.StatusTooManyRequests, SendOTPResponse{Message: msgRateLimited})
	case errors.As(err, &de):
		respondWithJSON(w, http.StatusInternalServerError, SendOTPResponse{Message: msgDispatchFailed})
	default:
		h.logger.WithError(err).Error("Error in send-otp")
		respondWithJSON(w, http.StatusInternalServerError, SendOTPResponse{Message: msgServerError})
	}
}

func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, VerifyOTPResponse{Message: msgInvalidInput})
		return
	}

	result, err := h.otpService.VerifyOTP(r.Context(), service.VerifyOTPInput{
		Mobile: req.Mobile,
		Code:   req.Code,
	})
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			respondWithJSON(w, http.StatusBadRequest, VerifyOTPResponse{Message: ve.Message})
			return
		}
		h.logger.WithError(err).Error("Error in verify-otp")
		respondWithJSON(w, http.StatusInternalServerError, VerifyOTPResponse{Message: msgServerError})
		return
	}

	// A wrong code is still a processed request: 200 with verified=false.
	if !result.Verified {
		respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
			Success: true,
			Message: msgWrongOrExpired,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Success:       true,
		Verified:      true,
		Message:       msgVerified,
		DownloadToken: result.DownloadToken.Token,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
