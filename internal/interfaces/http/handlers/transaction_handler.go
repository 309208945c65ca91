package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/interfaces/http/response"
	"sepolia-wallet.backend/internal/usecases"
)

type transactionService interface {
	CreateTransaction(ctx context.Context, input *entities.CreateTransactionInput) (*entities.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*entities.Transaction, error)
}

// TransactionHandler handles transfer endpoints
type TransactionHandler struct {
	transactionUsecase transactionService
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(transactionUsecase *usecases.TransactionUsecase) *TransactionHandler {
	return &TransactionHandler{transactionUsecase: transactionUsecase}
}

// CreateTransaction signs and broadcasts a transfer. The record comes
// back pending; confirmation is tracked asynchronously.
// POST /api/v1/transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var input entities.CreateTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(bindingMessage(err)))
		return
	}

	tx, err := h.transactionUsecase.CreateTransaction(c.Request.Context(), &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, usecases.ToResponse(tx))
}

// GetTransaction gets a transaction by id
// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid transaction ID"))
		return
	}

	tx, err := h.transactionUsecase.GetTransaction(c.Request.Context(), id.String())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, usecases.ToResponse(tx))
}
