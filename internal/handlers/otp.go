package handlers

import (
	"errors"
	"net/http"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/repositories"
)

// OTPHandler issues and checks email verification codes.
type OTPHandler struct {
	OTP   OTPService
	Users UserStore
}

type sendOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"omitempty,max=64"`
}

type verifyOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Code    string `json:"code" validate:"required,numeric,min=4,max=10"`
	Purpose string `json:"purpose" validate:"omitempty,max=64"`
}

// Send handles POST /user/send-otp.
func (h OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req sendOTPRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	err := h.OTP.Send(ctx, req.Email, req.Purpose)
	switch {
	case err == nil:
		metrics.ObserveOTP("send", "ok")
		respondSuccess(ctx, w, http.StatusOK, nil, "OTP sent successfully")
	case errors.Is(err, auth.ErrOTPCooldown):
		metrics.ObserveOTP("send", "cooldown")
		respondError(ctx, w, tooManyRequests("Please wait before requesting another OTP"))
	default:
		metrics.ObserveOTP("send", "error")
		logger.Error("failed to send otp", "error", err)
		respondError(ctx, w, internalError("failed to send OTP"))
	}
}

// Verify handles POST /user/verify-otp. A matching code marks the account, if one exists,
// as email-verified.
func (h OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req verifyOTPRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.OTP.Verify(ctx, req.Email, req.Code, req.Purpose); err != nil {
		var apiErr apiError
		result := "invalid"
		switch {
		case errors.Is(err, auth.ErrOTPNotFound):
			result = "not_found"
			apiErr = notFound("OTP not found or already used")
		case errors.Is(err, auth.ErrOTPAttemptsExceeded):
			result = "exhausted"
			apiErr = tooManyRequests("Too many failed attempts, request a new OTP")
		case errors.Is(err, auth.ErrOTPExpired):
			result = "expired"
			apiErr = badRequest("OTP has expired")
		case errors.Is(err, auth.ErrOTPInvalid):
			apiErr = badRequest("Invalid OTP")
		default:
			metrics.ObserveOTP("verify", "error")
			respondError(ctx, w, err)
			return
		}
		metrics.ObserveOTP("verify", result)
		respondError(ctx, w, apiErr)
		return
	}
	metrics.ObserveOTP("verify", "ok")

	if h.Users != nil {
		if err := h.Users.MarkEmailVerified(ctx, req.Email); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("failed to mark email verified", "error", err)
			respondError(ctx, w, err)
			return
		}
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]bool{"verified": true}, "OTP verified successfully")
}
