package controllers

import (
	"errors"
	"strconv"

	"paysync-backend/ledger"
	"paysync-backend/models"
	"paysync-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TransactionHandler exposes read access to the reconciled ledger. All
// writes go through the reconciliation worker; there is deliberately no
// mutating endpoint here.
type TransactionHandler struct {
	Ledger *ledger.Store
}

func NewTransactionHandler(store *ledger.Store) *TransactionHandler {
	return &TransactionHandler{Ledger: store}
}

func (h *TransactionHandler) List(c *fiber.Ctx) error {
	f := ledger.Filter{
		PaymentType: models.PaymentType(c.Query("payment_type")),
		Status:      models.Status(c.Query("status")),
		From:        utils.ParseTimeParam(c.Query("from")),
		To:          utils.ParseTimeParam(c.Query("to")),
		Limit:       utils.ParseIntDefault(c.Query("limit"), 50),
		Offset:      utils.ParseIntDefault(c.Query("offset"), 0),
	}

	rows, total, err := h.Ledger.List(c.Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"transactions": rows,
		"pagination": fiber.Map{
			"total":  total,
			"limit":  f.Limit,
			"offset": f.Offset,
		},
	})
}

// Get resolves either an internal numeric id or a gateway payment id.
func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}

	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		row, err := h.Ledger.GetByID(c.Context(), uint(n))
		if err == nil {
			return c.JSON(row)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	// Fall back to payment id lookup, optionally narrowed by type.
	row, err := h.Ledger.GetByPaymentID(c.Context(), id, models.PaymentType(c.Query("payment_type")))
	if err != nil {
		return err
	}
	return c.JSON(row)
}
