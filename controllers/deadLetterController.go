package controllers

import (
	"errors"

	"paysync-backend/queue"
	"paysync-backend/utils"

	"github.com/gofiber/fiber/v2"
)

// DeadLetterHandler gives operators visibility into jobs that fell out of
// retry rotation, plus manual requeue/delete.
type DeadLetterHandler struct {
	Queue *queue.Queue
}

func NewDeadLetterHandler(q *queue.Queue) *DeadLetterHandler {
	return &DeadLetterHandler{Queue: q}
}

func (h *DeadLetterHandler) List(c *fiber.Ctx) error {
	limit := utils.ParseIntDefault(c.Query("limit"), 50)
	offset := utils.ParseIntDefault(c.Query("offset"), 0)

	jobs, total, err := h.Queue.DeadLetters(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"jobs": jobs,
		"pagination": fiber.Map{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *DeadLetterHandler) Requeue(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if err := h.Queue.Requeue(c.Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "dead-lettered job not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"message": "job requeued", "job_id": jobID})
}

func (h *DeadLetterHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if err := h.Queue.DeleteDead(c.Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "dead-lettered job not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"message": "job deleted", "job_id": jobID})
}
