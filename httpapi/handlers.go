package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth"
	"github.com/MrEthical07/examauth/permission"
)

type handler struct {
	svc    Service
	logger *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
	OTPCode  string `json:"otpCode"`
}

type otpRequiredResponse struct {
	OTPRequired bool   `json:"otpRequired"`
	ExpiresIn   int64  `json:"expiresIn"`
	Message     string `json:"message"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type otpGenerateRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

type otpVerifyRequest struct {
	Email   string `json:"email" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: ErrorBody{Code: "VALIDATION_ERROR", Message: err.Error()}})
		return false
	}
	return true
}

// login handles POST /auth/login.
func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.svc.Login(c.Request.Context(), examauth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		OTPCode:  req.OTPCode,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if res.OTPRequired {
		c.JSON(http.StatusAccepted, otpRequiredResponse{
			OTPRequired: true,
			ExpiresIn:   res.ExpiresIn,
			Message:     examauth.MsgOTPSent,
		})
		return
	}
	c.JSON(http.StatusOK, res.Tokens)
}

// refresh handles POST /auth/refresh.
func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *handler) logout(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	claims, _ := claimsFrom(c)
	if err := h.svc.Logout(c.Request.Context(), req.RefreshToken, claims.UserID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) logoutAll(c *gin.Context) {
	claims, _ := claimsFrom(c)
	n, err := h.svc.LogoutAll(c.Request.Context(), claims.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionsRevoked": n})
}

func (h *handler) me(c *gin.Context) {
	claims, _ := claimsFrom(c)
	c.JSON(http.StatusOK, claims)
}

// otpOutcome writes res for user-facing OTP failures and falls back to the
// error envelope when the engine produced no message.
func otpOutcome(c *gin.Context, res examauth.OTPResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	if res.Message == "" {
		abortWithError(c, err)
		return
	}
	setRetryAfter(c, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(examauth.HTTPStatus(err), res)
}

func (h *handler) generateOTP(c *gin.Context) {
	var req otpGenerateRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.GenerateOTP(c.Request.Context(), req.Email, examauth.OTPPurpose(req.Purpose))
	otpOutcome(c, res, err)
}

func (h *handler) verifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.VerifyOTP(c.Request.Context(), req.Email, req.Code, examauth.OTPPurpose(req.Purpose))
	otpOutcome(c, res, err)
}

func (h *handler) otpStatus(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		abortWithError(c, examauth.ErrInvalidInput)
		return
	}
	st, err := h.svc.OTPStatus(c.Request.Context(), email, examauth.OTPPurpose(c.Query("purpose")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// revokeOTP cancels the caller's own challenge. Holders of users.manage may
// name any account with ?email=.
func (h *handler) revokeOTP(c *gin.Context) {
	claims, _ := claimsFrom(c)
	purpose := examauth.OTPPurpose(c.Query("purpose"))

	var err error
	if email := c.Query("email"); email != "" && claims.Can(permission.PermUsersManage) {
		err = h.svc.RevokeOTP(c.Request.Context(), email, purpose)
	} else {
		err = h.svc.RevokeOwnOTP(c.Request.Context(), claims.UserID, purpose)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, examauth.ErrEngineNotReady) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
