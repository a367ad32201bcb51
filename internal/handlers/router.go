package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jorat/landing/internal/middleware"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	OTP            *OTPHandlers
	Download       *DownloadHandlers
	AuthMiddleware *middleware.AuthMiddleware
	AllowedOrigins []string
	Logger         *logrus.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(deps.Logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/send-otp", deps.OTP.SendOTP).Methods(http.MethodPost)
	api.HandleFunc("/verify-otp", deps.OTP.VerifyOTP).Methods(http.MethodPost)

	download := api.PathPrefix("/download").Subrouter()
	download.Use(deps.AuthMiddleware.RequireDownloadToken)
	download.HandleFunc("", deps.Download.Download).Methods(http.MethodGet, http.MethodHead)

	return middleware.CORSMiddleware(deps.AllowedOrigins)(router)
}
