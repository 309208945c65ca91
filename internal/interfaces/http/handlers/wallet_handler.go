package handlers

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/interfaces/http/response"
	"sepolia-wallet.backend/internal/usecases"
	"sepolia-wallet.backend/pkg/utils"
)

var addressExpr = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

type walletService interface {
	CreateWallet(ctx context.Context) (*entities.Wallet, error)
	ImportWallet(ctx context.Context, privateKey string) (*entities.Wallet, error)
	GetWallet(ctx context.Context, address string) (*entities.Wallet, error)
	GetBalance(ctx context.Context, address string) (*entities.WalletBalance, error)
	GetTransactions(ctx context.Context, address string, pagination utils.PaginationParams) ([]string, int64, error)
}

// WalletHandler handles wallet endpoints
type WalletHandler struct {
	walletUsecase walletService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletUsecase *usecases.WalletUsecase) *WalletHandler {
	return &WalletHandler{walletUsecase: walletUsecase}
}

// addressParam reads and validates the :address path parameter
func addressParam(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !addressExpr.MatchString(address) {
		response.Error(c, domainerrors.BadRequest("Invalid Ethereum address: "+address))
		return "", false
	}
	return address, true
}

// CreateWallet generates a new custodial wallet. The private key is only
// ever returned here.
// POST /api/v1/wallets
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	wallet, err := h.walletUsecase.CreateWallet(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"address":    wallet.Address,
		"balance":    wallet.Balance,
		"privateKey": wallet.PrivateKey,
	})
}

// ImportWallet registers an existing private key
// POST /api/v1/wallets/import
func (h *WalletHandler) ImportWallet(c *gin.Context) {
	var input entities.ImportWalletInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(bindingMessage(err)))
		return
	}

	wallet, err := h.walletUsecase.ImportWallet(c.Request.Context(), input.PrivateKey)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"address": wallet.Address,
		"balance": wallet.Balance,
	})
}

// GetWallet gets a registered wallet
// GET /api/v1/wallets/:address
func (h *WalletHandler) GetWallet(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}

	wallet, err := h.walletUsecase.GetWallet(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"address": wallet.Address,
		"balance": wallet.Balance,
	})
}

// GetBalance reads the live balance of any address
// GET /api/v1/wallets/:address/balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}

	balance, err := h.walletUsecase.GetBalance(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, balance)
}

// GetTransactions lists the transaction ids of a wallet, newest first.
// Without a limit the whole index is returned.
// GET /api/v1/wallets/:address/transactions
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit > 100 {
		limit = 100
	}
	pagination := utils.GetPaginationParams(page, limit)

	ids, total, err := h.walletUsecase.GetTransactions(c.Request.Context(), address, pagination)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"items": ids,
		"meta":  utils.CalculateMeta(total, pagination.Page, pagination.Limit),
	})
}
