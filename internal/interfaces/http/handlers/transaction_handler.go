package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/interfaces/http/response"
	"payroute.backend/internal/usecases"
	"payroute.backend/pkg/utils"
)

type TransactionService interface {
	Create(ctx context.Context, in usecases.CreateTransactionInput) (*entities.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	List(ctx context.Context, filter entities.TransactionFilter, page, limit int) ([]*entities.Transaction, utils.PaginationMeta, error)
	ListAttempts(ctx context.Context, id uuid.UUID) ([]*entities.RoutingAttempt, error)
	ListWebhooks(ctx context.Context, id uuid.UUID) ([]*entities.WebhookRecord, error)
	Process(ctx context.Context, id uuid.UUID, strategy entities.ProcessingStrategy) (*entities.ProcessResult, error)
	Refund(ctx context.Context, id uuid.UUID, in usecases.RefundInput) (*entities.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*entities.Transaction, error)
	SyncStatus(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
}

// TransactionHandler serves the merchant transaction API
type TransactionHandler struct {
	transactions TransactionService
}

func NewTransactionHandler(transactions TransactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

type createTransactionRequest struct {
	MerchantID    string                    `json:"merchantId" binding:"required"`
	Reference     string                    `json:"reference"`
	Amount        decimal.Decimal           `json:"amount"`
	Currency      string                    `json:"currency" binding:"required"`
	PaymentMethod entities.PaymentMethod    `json:"paymentMethod" binding:"required"`
	Customer      *entities.CustomerDetails `json:"customer"`
	Metadata      map[string]interface{}    `json:"metadata"`
}

type processRequest struct {
	Strategy entities.ProcessingStrategy `json:"strategy"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CreateTransaction stores a pending transaction
// POST /api/v1/transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid merchant ID"))
		return
	}

	tx, err := h.transactions.Create(c.Request.Context(), usecases.CreateTransactionInput{
		MerchantID:    merchantID,
		Reference:     req.Reference,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
		Metadata:      req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"transaction": tx})
}

// ListTransactions
// GET /api/v1/transactions?merchantId=&status=&page=&limit=
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	var filter entities.TransactionFilter
	if raw := c.Query("merchantId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, domainerrors.BadRequest("Invalid merchant ID"))
			return
		}
		filter.MerchantID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := entities.TransactionStatus(strings.ToLower(raw))
		if !status.Valid() {
			response.Error(c, domainerrors.BadRequest("Invalid status"))
			return
		}
		filter.Status = &status
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, meta, err := h.transactions.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, http.StatusOK, items, meta)
}

// GetTransaction
// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	tx, err := h.transactions.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transaction": tx})
}

// ListAttempts returns the gateway calls made for a transaction
// GET /api/v1/transactions/:id/attempts
func (h *TransactionHandler) ListAttempts(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	attempts, err := h.transactions.ListAttempts(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// ListWebhooks
// GET /api/v1/transactions/:id/webhooks
func (h *TransactionHandler) ListWebhooks(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	records, err := h.transactions.ListWebhooks(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"webhooks": records})
}

// ProcessTransaction routes and charges a pending transaction. Declines and
// routing failures are a 200 with success=false; a transaction that was
// already claimed is a 409.
// POST /api/v1/transactions/:id/process
func (h *TransactionHandler) ProcessTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	var req processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
	}

	result, err := h.transactions.Process(c.Request.Context(), id, req.Strategy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// RefundTransaction
// POST /api/v1/transactions/:id/refund
func (h *TransactionHandler) RefundTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
	}

	tx, err := h.transactions.Refund(c.Request.Context(), id, usecases.RefundInput{Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transaction": tx})
}

// CancelTransaction
// POST /api/v1/transactions/:id/cancel
func (h *TransactionHandler) CancelTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
	}

	tx, err := h.transactions.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transaction": tx})
}

// SyncTransaction asks the gateway for the current status
// POST /api/v1/transactions/:id/sync
func (h *TransactionHandler) SyncTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}
	tx, err := h.transactions.SyncStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transaction": tx})
}

func transactionID(c *gin.Context) (uuid.UUID, bool) {
	return uuidParam(c, "id", "Invalid transaction ID")
}

func uuidParam(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(message))
		return uuid.Nil, false
	}
	return id, true
}
