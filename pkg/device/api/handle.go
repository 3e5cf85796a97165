package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-device-trust/pkg/client"
	"github.com/tendant/simple-device-trust/pkg/device"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
	"github.com/tendant/simple-device-trust/pkg/fingerprint"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// maxPayloadBytes bounds fingerprint request bodies
const maxPayloadBytes = 16 << 10

// DeviceHandler handles HTTP requests for device management
type DeviceHandler struct {
	registry *device.Registry
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(registry *device.Registry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// DeviceResponse is the client view of a device. The raw fingerprint is never returned.
type DeviceResponse struct {
	ID          string    `json:"id"`
	DeviceLabel string    `json:"device_label"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
	Platform    string    `json:"platform"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// TrustStateResponse is the client view of an account's trust state
type TrustStateResponse struct {
	State         trust.State `json:"state"`
	BlockedReason string      `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time  `json:"blocked_at,omitempty"`
}

// RegisterResponse is returned by the register endpoint
type RegisterResponse struct {
	Device      DeviceResponse     `json:"device"`
	Matched     bool               `json:"matched"`
	Score       float64            `json:"score"`
	ActiveCount int                `json:"active_count"`
	TrustState  TrustStateResponse `json:"trust_state"`
}

// ListDevicesResponse represents the response body for listing devices
type ListDevicesResponse struct {
	Devices    []DeviceResponse `json:"devices"`
	MaxDevices int              `json:"max_devices"`
}

// RemoveDeviceResponse carries the number of devices left after a removal
type RemoveDeviceResponse struct {
	Remaining int `json:"remaining"`
}

// RenameDeviceRequest is the body of the rename endpoint
type RenameDeviceRequest struct {
	DeviceLabel string `json:"device_label"`
}

// ManagementTokenResponse is returned when a management token is issued
type ManagementTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Redirect string                 `json:"redirect,omitempty"`
}

// BlockedRegistrationResponse is returned with 403 when a registration blocked the account
type BlockedRegistrationResponse struct {
	ErrorResponse
	Registration *RegisterResponse `json:"registration,omitempty"`
}

// SessionRoutes serves the device endpoints for an authenticated session.
// It must be mounted behind client.Verifier and client.AuthUserMiddleware.
func SessionRoutes(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.RegisterDevice)
	r.Get("/", h.ListDevices)
	r.Get("/trust-state", h.GetTrustState)
	r.Post("/management-token", h.IssueManagementToken)
	r.Delete("/{deviceID}", h.RemoveDevice)
	r.Patch("/{deviceID}", h.RenameDevice)
	return r
}

// ManagementRoutes serves device listing and removal authorized by a management
// token instead of a session. The token is read from an "Authorization: Bearer"
// header or, for links in block alerts, the "token" query parameter.
func ManagementRoutes(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/devices", h.ListDevicesWithToken)
	r.Delete("/devices/{deviceID}", h.RemoveDeviceWithToken)
	return r
}

// AdminRoutes serves administrator endpoints; callers add the role check
func AdminRoutes(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/{userID}/trust-state", h.AdminGetTrustState)
	r.Post("/{userID}/unblock", h.AdminUnblock)
	return r
}

func sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	authUser, ok := client.GetAuthUser(r)
	if !ok || authUser.UserId == "" {
		renderError(w, r, apperrors.New(apperrors.ErrCodeUnauthorized, "authentication required"))
		return "", false
	}
	return authUser.UserId, true
}

// RegisterDevice records the fingerprint submitted by the client collector
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	payload, err := fingerprint.DecodeReader(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		slog.Debug("Rejected fingerprint payload", "userID", userID, "error", err)
		renderError(w, r, err)
		return
	}

	result, err := h.registry.RegisterOrTouch(r.Context(), userID, payload.Fingerprint, payload.DeviceLabel)
	if err != nil {
		if result.Device.ID != "" {
			resp := toRegisterResponse(result)
			renderErrorWithBody(w, r, err, &resp)
			return
		}
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toRegisterResponse(result))
}

// ListDevices lists the session user's devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	h.listDevices(w, r, userID)
}

// RemoveDevice removes one of the session user's devices
func (h *DeviceHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	h.removeDevice(w, r, userID)
}

// RenameDevice changes the label of one of the session user's devices
func (h *DeviceHandler) RenameDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	var req RenameDeviceRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxPayloadBytes), &req); err != nil {
		renderError(w, r, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	renamed, err := h.registry.Rename(r.Context(), userID, chi.URLParam(r, "deviceID"), req.DeviceLabel)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toDeviceResponse(device.DeviceView{
		DeviceRecord: renamed,
		Browser:      device.BrowserName(renamed.Fingerprint.UserAgent),
		OS:           device.OSName(renamed.Fingerprint.UserAgent),
	}))
}

// GetTrustState returns the session user's trust state
func (h *DeviceHandler) GetTrustState(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	state, err := h.registry.TrustState(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, toTrustStateResponse(state))
}

// IssueManagementToken issues a management token for the session user
func (h *DeviceHandler) IssueManagementToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	token, err := h.registry.IssueManagementToken(userID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ManagementTokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt})
}

// tokenUser verifies the management token. Every failure gets the same 401 body.
func (h *DeviceHandler) tokenUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := h.registry.VerifyManagementToken(managementToken(r))
	if err != nil {
		renderError(w, r, apperrors.TokenInvalid(nil))
		return "", false
	}
	return token.UserID, true
}

// managementToken prefers the Authorization header over the query parameter
func managementToken(r *http.Request) string {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// ListDevicesWithToken lists devices for the token's user
func (h *DeviceHandler) ListDevicesWithToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.tokenUser(w, r)
	if !ok {
		return
	}
	h.listDevices(w, r, userID)
}

// RemoveDeviceWithToken removes a device of the token's user
func (h *DeviceHandler) RemoveDeviceWithToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.tokenUser(w, r)
	if !ok {
		return
	}
	h.removeDevice(w, r, userID)
}

// AdminGetTrustState returns the trust state of any account
func (h *DeviceHandler) AdminGetTrustState(w http.ResponseWriter, r *http.Request) {
	state, err := h.registry.TrustState(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, toTrustStateResponse(state))
}

// AdminUnblock clears a block on an account
func (h *DeviceHandler) AdminUnblock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if admin, ok := client.GetAuthUser(r); ok {
		slog.Info("Administrator unblocking account", "admin", admin, "userID", userID)
	}

	state, err := h.registry.Unblock(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, toTrustStateResponse(state))
}

func (h *DeviceHandler) listDevices(w http.ResponseWriter, r *http.Request, userID string) {
	views, err := h.registry.List(r.Context(), userID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := ListDevicesResponse{
		Devices:    make([]DeviceResponse, 0, len(views)),
		MaxDevices: h.registry.MaxDevices(),
	}
	for _, v := range views {
		resp.Devices = append(resp.Devices, toDeviceResponse(v))
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (h *DeviceHandler) removeDevice(w http.ResponseWriter, r *http.Request, userID string) {
	remaining, err := h.registry.Remove(r.Context(), userID, chi.URLParam(r, "deviceID"))
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeRemovalThrottled) {
			if secs, ok := apperrors.GetDetails(err)["retry_after_seconds"].(int64); ok {
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			}
		}
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, RemoveDeviceResponse{Remaining: remaining})
}

func toDeviceResponse(v device.DeviceView) DeviceResponse {
	var resp DeviceResponse
	if err := copier.Copy(&resp, &v); err != nil {
		slog.Error("Failed to map device", "deviceID", v.ID, "error", err)
	}
	resp.Platform = v.Fingerprint.Platform
	return resp
}

func toTrustStateResponse(state trust.AccountTrustState) TrustStateResponse {
	return TrustStateResponse{
		State:         state.State(),
		BlockedReason: state.BlockedReason,
		BlockedAt:     state.BlockedAt,
	}
}

func toRegisterResponse(result device.RegistrationResult) RegisterResponse {
	return RegisterResponse{
		Device: toDeviceResponse(device.DeviceView{
			DeviceRecord: result.Device,
			Browser:      device.BrowserName(result.Device.Fingerprint.UserAgent),
			OS:           device.OSName(result.Device.Fingerprint.UserAgent),
		}),
		Matched:     result.Matched,
		Score:       math.Round(result.Score*1000) / 1000,
		ActiveCount: result.ActiveCount,
		TrustState:  toTrustStateResponse(result.TrustState),
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		slog.Error("Unhandled error", "error", err)
		return http.StatusInternalServerError, ErrorResponse{
			Code:    string(apperrors.ErrCodeInternal),
			Message: "internal error",
		}
	}

	resp := ErrorResponse{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	switch appErr.Code {
	case apperrors.ErrCodeTokenInvalid:
		// Never reveal whether the token was malformed, expired or forged
		resp.Details = nil
	case apperrors.ErrCodeAccountBlocked, apperrors.ErrCodeDeviceLimitExceeded:
		resp.Redirect = DeviceManagementPath
	case apperrors.ErrCodeInternal, apperrors.ErrCodeTimeout:
		slog.Error("Request failed", "error", err)
	}
	return appErr.HTTPStatusCode(), resp
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func renderErrorWithBody(w http.ResponseWriter, r *http.Request, err error, registration *RegisterResponse) {
	status, resp := errorResponse(err)
	render.Status(r, status)
	render.JSON(w, r, BlockedRegistrationResponse{ErrorResponse: resp, Registration: registration})
}
