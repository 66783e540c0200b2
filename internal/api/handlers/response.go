package handlers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/api/middleware"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/goccy/go-json"
)

// USEF response statuses.
const (
	StatusProcessed                   = "PROCESSED"
	StatusInvalidMessageType          = "INVALID_MESSAGE_TYPE"
	StatusInvalidDomain               = "INVALID_DOMAIN"
	StatusInvalidUnit                 = "INVALID_UNIT"
	StatusUnrecognizedConnectionGroup = "UNRECOGNIZED_CONNECTION_GROUP"
	StatusUnrecognizedAsset           = "UNRECOGNIZED_ASSET"
	StatusInvalidPeriod               = "INVALID_PERIOD"
	StatusInvalidHorizon              = "INVALID_HORIZON"
	StatusInvalidResolution           = "INVALID_RESOLUTION"
	StatusInvalidMethod               = "INVALID_METHOD"
	StatusInternalError               = "INTERNAL_ERROR"
)

const msgProcessed = "Request has been processed."

type usefResponse struct {
	Type    string `json:"type,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the plain error body used outside the USEF messages.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string][]string{"errors": {msg}})
}

// writeUSEF writes a USEF status message typed after the route's response.
func writeUSEF(w http.ResponseWriter, r *http.Request, code int, status, msg string) {
	writeJSON(w, code, usefResponse{
		Type:    middleware.ResponseTypeFromContext(r.Context()),
		Status:  status,
		Message: msg,
	})
}

func writeProcessed(w http.ResponseWriter, r *http.Request) {
	writeUSEF(w, r, http.StatusOK, StatusProcessed, msgProcessed)
}

// writeServiceError maps service errors onto USEF statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDomain):
		writeUSEF(w, r, http.StatusBadRequest, StatusInvalidDomain, "Connection is not a valid entity address: "+err.Error())
	case errors.Is(err, service.ErrUnknownConnection):
		writeUSEF(w, r, http.StatusBadRequest, StatusUnrecognizedAsset, "No such asset: "+err.Error())
	case errors.Is(err, service.ErrInvalidPeriod):
		writeUSEF(w, r, http.StatusBadRequest, StatusInvalidPeriod, "Invalid period: "+err.Error())
	case errors.Is(err, service.ErrInvalidHorizon):
		writeUSEF(w, r, http.StatusBadRequest, StatusInvalidHorizon, "Invalid horizon: "+err.Error())
	case errors.Is(err, service.ErrInvalidResolution):
		writeUSEF(w, r, http.StatusBadRequest, StatusInvalidResolution, "Invalid resolution: "+err.Error())
	default:
		writeUSEF(w, r, http.StatusInternalServerError, StatusInternalError, "Internal error.")
	}
}

// MethodNotAllowed answers requests with a method the route does not serve.
// Route middleware never ran, so the response type is taken from the path.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if middleware.ResponseTypeFromContext(r.Context()) == "" {
		if t := responseTypeForPath(r.URL.Path); t != "" {
			r = r.WithContext(middleware.WithResponseType(r.Context(), t))
		}
	}
	writeUSEF(w, r, http.StatusMethodNotAllowed, StatusInvalidMethod, "Request method "+r.Method+" not supported.")
}

// responseTypeForPath maps /api/<version>/<service> onto the service's
// response type, e.g. postMeterData onto PostMeterDataResponse.
func responseTypeForPath(p string) string {
	version, name := path.Split(strings.TrimSuffix(p, "/"))
	listing, ok := Listings[path.Base(version)]
	if !ok || name == "" {
		return ""
	}
	if name != "getService" && !listing.Offers(name) {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:] + "Response"
}
