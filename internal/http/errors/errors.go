package errors

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jw6ventures/foodlog/internal/logging"
)

// Logger is used by the helpers below. It is replaced at startup.
var Logger logrus.FieldLogger = logrus.StandardLogger()

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logging.FromContext(r.Context(), Logger).WithError(err).Error(message)

	// Never leak backend detail to the client.
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logging.FromContext(r.Context(), Logger).WithError(err).Warn("bad request")
	http.Error(w, clientMessage, http.StatusBadRequest)
}

func LogError(r *http.Request, message string, err error) {
	logging.FromContext(r.Context(), Logger).WithError(err).Error(message)
}

func LogInfo(r *http.Request, message string) {
	logging.FromContext(r.Context(), Logger).Info(message)
}
