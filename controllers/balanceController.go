package controllers

import (
	"errors"

	"paysync-backend/staging"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// BalanceHandler serves the latest balance snapshot captured by the poller.
type BalanceHandler struct {
	Balances *staging.BalanceStore
	Account  string
}

func NewBalanceHandler(store *staging.BalanceStore, account string) *BalanceHandler {
	return &BalanceHandler{Balances: store, Account: account}
}

func (h *BalanceHandler) Get(c *fiber.Ctx) error {
	snap, err := h.Balances.Latest(c.Context(), h.Account)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no balance captured yet")
		}
		return err
	}
	return c.JSON(fiber.Map{
		"account":     snap.Account,
		"fund_in":     snap.FundIn,
		"fund_out":    snap.FundOut,
		"total":       snap.FundIn.Add(snap.FundOut),
		"captured_at": snap.CapturedAt,
	})
}
