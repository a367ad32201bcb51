package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"

	"github.com/jorat/landing/internal/middleware"
	"github.com/jorat/landing/internal/repository"
	"github.com/sirupsen/logrus"
)

type DownloadHandlers struct {
	apkPath  string
	fileName string
	logger   *logrus.Logger
}

func NewDownloadHandlers(apkPath, fileName string, logger *logrus.Logger) *DownloadHandlers {
	return &DownloadHandlers{
		apkPath:  apkPath,
		fileName: fileName,
		logger:   logger,
	}
}

// Download streams the APK. It must sit behind RequireDownloadToken.
func (h *DownloadHandlers) Download(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.apkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.logger.WithField("path", h.apkPath).Error("APK file not found")
			respondWithJSON(w, http.StatusNotFound, SendOTPResponse{Message: "فایل برنامه در دسترس نیست"})
			return
		}
		h.logger.WithError(err).Error("Failed to open APK file")
		respondWithJSON(w, http.StatusInternalServerError, SendOTPResponse{Message: msgServerError})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.WithError(err).Error("Failed to stat APK file")
		respondWithJSON(w, http.StatusInternalServerError, SendOTPResponse{Message: msgServerError})
		return
	}

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		h.logger.WithFields(logrus.Fields{
			"mobile": repository.MaskMobile(claims.Mobile),
			"jti":    claims.ID,
		}).Info("APK download started")
	}

	w.Header().Set("Content-Type", "application/vnd.android.package-archive")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.fileName}))
	http.ServeContent(w, r, h.fileName, info.ModTime(), f)
}
