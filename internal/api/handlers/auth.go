package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/goccy/go-json"
)

// APIVersions lists the USEF API versions in the order they were released.
var APIVersions = []string{"v1", "v1_1", "v1_2", "v1_3"}

type versionsResponse struct {
	Message  string   `json:"message"`
	Versions []string `json:"versions"`
}

// Versions lists the available API versions.
func Versions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionsResponse{
		Message: "For these API versions a public endpoint is available, listing its service. For example: " +
			"/api/v1/getService and /api/v1_1/getService. An authentication token can be requested at: " +
			"/api/requestAuthToken",
		Versions: APIVersions,
	})
}

// TokenIssuer hands out auth tokens to users who know their password.
type TokenIssuer interface {
	Lookup(ctx context.Context, email string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}

type AuthHandler struct {
	auth TokenIssuer
}

func NewAuthHandler(auth TokenIssuer) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type tokenRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type tokenResponse struct {
	AuthToken string `json:"auth_token"`
	UserID    int64  `json:"user_id"`
}

// RequestAuthToken exchanges an email and password for a fresh auth token.
func (h *AuthHandler) RequestAuthToken(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, "Content-type of request must be application/json")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object.")
		return
	}
	if req.Email == nil {
		writeError(w, http.StatusBadRequest, "Please provide the 'email' parameter.")
		return
	}

	if _, err := h.auth.Lookup(r.Context(), *req.Email); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("User with email '%s' does not exist", *req.Email))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Password == nil {
		writeError(w, http.StatusBadRequest, "Please provide the 'password' parameter.")
		return
	}

	token, u, err := h.auth.Login(r.Context(), *req.Email, *req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordMismatch):
			writeError(w, http.StatusUnauthorized, "User password does not match.")
		case errors.Is(err, service.ErrInactiveUser):
			writeError(w, http.StatusUnauthorized, "User is not active.")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AuthToken: token, UserID: u.ID})
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
