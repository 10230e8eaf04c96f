package fakebackend

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

const userIDKey = "user_id"

type createUserRequest struct {
	DeviceID string `json:"device_id"`
}

type userRequest struct {
	UserID  string `json:"user_id"`
	OfferID string `json:"offer_id"`
}

type handlers struct {
	cfg   *Config
	state *State
	log   logging.Logger
	now   func() time.Time
}

func (h *handlers) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, "bad_request", "malformed body")
	}
	id := h.state.CreateUser(req.DeviceID)
	h.log.Info(c.Request().Context(), "user created", "user_id", id)
	return c.JSON(http.StatusCreated, map[string]string{"user_id": id})
}

func (h *handlers) authorize(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return newAPIError(http.StatusBadRequest, "bad_request", "user_id is required")
	}
	if !h.state.UserExists(req.UserID) {
		return newAPIError(http.StatusNotFound, "unknown_user", "no such user")
	}

	token, err := GenerateToken(req.UserID, []byte(h.cfg.Auth.Secret), h.cfg.Auth.TokenTTL, h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"access_token": token})
}

// authenticate admits requests carrying a valid bearer session token.
func (h *handlers) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(common.AuthorizationHeaderName)
		token := strings.TrimPrefix(header, common.BearerPrefix)
		if header == "" || token == header {
			return newAPIError(http.StatusUnauthorized, "unauthorized", "missing bearer token")
		}

		userID, err := UserIDFromToken(token, []byte(h.cfg.Auth.Secret))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				return newAPIError(http.StatusUnauthorized, "token_expired", "session expired")
			}
			return newAPIError(http.StatusUnauthorized, "unauthorized", "invalid token")
		}
		if !h.state.UserExists(userID) {
			return newAPIError(http.StatusUnauthorized, "unauthorized", "unknown user")
		}

		c.Set(userIDKey, userID)
		return next(c)
	}
}

func (h *handlers) createSearch(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return newAPIError(http.StatusBadRequest, "missing_image", "multipart field \"image\" is required")
	}
	switch {
	case fh.Size == 0:
		return newAPIError(http.StatusBadRequest, "empty_image", "image is empty")
	case fh.Size > h.cfg.HTTP.MaxUploadBytes:
		return newAPIError(http.StatusRequestEntityTooLarge, "image_too_large", "image exceeds upload limit")
	}

	owner := c.Get(userIDKey).(string)
	id := h.state.CreateTask(owner)
	h.log.Info(c.Request().Context(), "search task created", "task_id", id, "user_id", owner, "bytes", fh.Size)
	return c.JSON(http.StatusCreated, map[string]string{"task_id": id})
}

func (h *handlers) searchStatus(c echo.Context) error {
	report, err := h.state.Poll(c.Get(userIDKey).(string), c.Param("id"))
	if errors.Is(err, common.ErrorNotFound) {
		return newAPIError(http.StatusNotFound, "task_not_found", "no such task")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *handlers) products(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]models.Offer{"offers": h.state.Offers()})
}

func (h *handlers) purchase(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" || req.OfferID == "" {
		return newAPIError(http.StatusBadRequest, "bad_request", "user_id and offer_id are required")
	}
	if code := h.cfg.Billing.FailPurchase; code != "" {
		return newAPIError(http.StatusPaymentRequired, code, "purchase did not complete")
	}

	switch err := h.state.Subscribe(req.UserID, req.OfferID); {
	case errors.Is(err, ErrUnknownOffer):
		return newAPIError(http.StatusNotFound, "unknown_offer", "no such offer")
	case errors.Is(err, ErrUnknownUser):
		return newAPIError(http.StatusNotFound, "unknown_user", "no such user")
	case err != nil:
		return err
	}

	h.log.Info(c.Request().Context(), "subscription purchased", "user_id", req.UserID, "offer_id", req.OfferID)
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": true})
}

func (h *handlers) restore(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return newAPIError(http.StatusBadRequest, "bad_request", "user_id is required")
	}
	if !h.state.UserExists(req.UserID) {
		return newAPIError(http.StatusNotFound, "unknown_user", "no such user")
	}
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": h.state.Subscribed(req.UserID)})
}

func (h *handlers) subscriptionStatus(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return newAPIError(http.StatusBadRequest, "bad_request", "user_id is required")
	}
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": h.state.Subscribed(userID)})
}

func healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
