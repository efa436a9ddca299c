package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de acceso.
type AuthHandler struct {
	logger     *zap.Logger
	users      *service.UserService
	otp        *service.OTPService
	google     *service.GoogleAuthService
	engagement *service.EngagementService
	jwtServ    *service.JWTService
}

func NewAuthHandler(
	logger *zap.Logger,
	users *service.UserService,
	otp *service.OTPService,
	google *service.GoogleAuthService,
	engagement *service.EngagementService,
	jwtServ *service.JWTService,
) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		users:      users,
		otp:        otp,
		google:     google,
		engagement: engagement,
		jwtServ:    jwtServ,
	}
}

// Register maneja POST /auth/register (camino legado con contraseña).
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email        string `json:"email" binding:"required,email"`
		Password     string `json:"password" binding:"required"`
		Phone        string `json:"phone"`
		FullName     string `json:"full_name"`
		Role         string `json:"role"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.users.CreateAccount(c.Request.Context(), service.CreateAccountInput{
		Email:        req.Email,
		Password:     req.Password,
		Phone:        req.Phone,
		FullName:     req.FullName,
		Role:         req.Role,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
		}
		return
	}

	h.respondWithSession(c, http.StatusCreated, account, gin.H{"is_new_user": true})
}

// Login maneja POST /auth/login (camino con contraseña).
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, bonusApplied, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		case errors.Is(err, service.ErrNoPasswordSet):
			// Señal recuperable: el cliente debe caer al flujo OTP.
			c.JSON(http.StatusConflict, gin.H{"error": "no password set", "use_otp": true})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	h.respondWithSession(c, http.StatusOK, account, gin.H{"bonus_applied": bonusApplied})
}

// Me maneja GET /auth/me: snapshot de cuenta y token refrescado.
func (h *AuthHandler) Me(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	h.respondWithSession(c, http.StatusOK, account, nil)
}

// DailyLogin maneja POST /auth/daily-login para sesiones válidas.
func (h *AuthHandler) DailyLogin(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	account, bonusApplied, err := h.engagement.RecordLogin(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("daily login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record login"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account.View(), "bonus_applied": bonusApplied})
}

// SendOTP maneja POST /auth/otp/send y POST /auth/otp/resend.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req struct {
		Email   string `json:"email" binding:"required,email"`
		Purpose string `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.otp.Send(c.Request.Context(), req.Email, req.Purpose); err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		default:
			h.logger.Error("send otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send otp"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "otp_sent"})
}

// VerifyOTP maneja POST /auth/otp/verify.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email        string `json:"email" binding:"required,email"`
		Code         string `json:"code" binding:"required"`
		Role         string `json:"role"`
		ReferralCode string `json:"referral_code"`
		FullName     string `json:"full_name"`
		Phone        string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.otp.Verify(c.Request.Context(), service.OTPVerifyInput{
		Email:        req.Email,
		Code:         req.Code,
		Role:         req.Role,
		ReferralCode: req.ReferralCode,
		FullName:     req.FullName,
		Phone:        req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOTPNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "otp not requested"})
		case errors.Is(err, service.ErrOTPTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "otp attempts exceeded"})
		case errors.Is(err, service.ErrOTPExpired), errors.Is(err, service.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	h.respondWithSession(c, http.StatusOK, result.Account, gin.H{
		"is_new_user":   result.IsNewUser,
		"bonus_applied": result.BonusApplied,
	})
}

// CheckEmail maneja POST /auth/check-email: sondeo sin efectos.
func (h *AuthHandler) CheckEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid check email request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	check, err := h.users.CheckEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("check email failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check email"})
		return
	}
	c.JSON(http.StatusOK, check)
}

// SetPassword maneja POST /auth/set-password (enrolamiento).
func (h *AuthHandler) SetPassword(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid set password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.users.SetPassword(c.Request.Context(), account.ID, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		default:
			h.logger.Error("set password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not set password"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_set"})
}

// GoogleLogin maneja POST /auth/google.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid google request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.google.Authenticate(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, service.ErrGoogleTokenInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid google token"})
			return
		}
		h.logger.Error("google login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete google login"})
		return
	}

	h.respondWithSession(c, http.StatusOK, result.Account, gin.H{
		"is_new_user":   result.IsNewUser,
		"bonus_applied": result.BonusApplied,
	})
}

// currentAccount confirma que la cuenta detrás del token siga viva.
func (h *AuthHandler) currentAccount(c *gin.Context) (domain.Account, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return domain.Account{}, false
	}
	account, err := h.users.GetAccount(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return domain.Account{}, false
		}
		h.logger.Error("load account failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		return domain.Account{}, false
	}
	return account, true
}

func (h *AuthHandler) respondWithSession(c *gin.Context, status int, account domain.Account, extra gin.H) {
	token, err := h.jwtServ.Issue(account)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	payload := gin.H{"account": account.View(), "token": token}
	for k, v := range extra {
		payload[k] = v
	}
	c.JSON(status, payload)
}
