package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
	"nestmarket/internal/service"
)

// WalletHandler expone saldo, historial y compras de funciones.
type WalletHandler struct {
	logger        *zap.Logger
	users         *service.UserService
	ledger        *service.LedgerService
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
}

func NewWalletHandler(
	logger *zap.Logger,
	users *service.UserService,
	ledger *service.LedgerService,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
) *WalletHandler {
	return &WalletHandler{
		logger:        logger,
		users:         users,
		ledger:        ledger,
		transactions:  transactions,
		notifications: notifications,
	}
}

// GetWallet maneja GET /wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":        account.Wallet,
		"referral_code": account.ReferralCode,
	})
}

// ListTransactions maneja GET /wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	txs, err := h.transactions.ListByUser(c.Request.Context(), account.ID, 50)
	if err != nil {
		h.logger.Error("list transactions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Spend maneja POST /wallet/spend: débito por función comprable con
// costo fijo del lado del servidor.
func (h *WalletHandler) Spend(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	var req struct {
		Reason      string `json:"reason" binding:"required"`
		ReferenceID string `json:"reference_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid spend request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reason := domain.TxReason(req.Reason)
	cost, ok := domain.FeatureCost(reason)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown feature"})
		return
	}

	tx, err := h.ledger.Debit(c.Request.Context(), account.ID, cost, reason, req.ReferenceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient coins"})
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		default:
			h.logger.Error("spend failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not spend coins"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ListNotifications maneja GET /notifications.
func (h *WalletHandler) ListNotifications(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	items, err := h.notifications.ListByUser(c.Request.Context(), account.ID, 50)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkNotificationRead maneja POST /notifications/:id/read.
func (h *WalletHandler) MarkNotificationRead(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.notifications.MarkRead(c.Request.Context(), id, account.ID); err != nil {
		h.logger.Error("mark notification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WalletHandler) currentAccount(c *gin.Context) (domain.Account, bool) {
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
