package api

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ListHistory returns a paginated job list, newest first.
func (h *Handlers) ListHistory(c *fiber.Ctx) error {
	if h.store == nil {
		return historyUnavailable(c)
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	search := c.Query("search")

	list, err := h.store.ListJobs(c.Context(), page, limit, search)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list history")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list history",
		})
	}
	return c.JSON(list)
}

// GetHistoryJob returns one job with its pages.
func (h *Handlers) GetHistoryJob(c *fiber.Ctx) error {
	if h.store == nil {
		return historyUnavailable(c)
	}

	job, err := h.store.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		}
		h.log.Error().Err(err).Str("job_id", c.Params("id")).Msg("Failed to load job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job",
		})
	}
	return c.JSON(job)
}

// DeleteHistoryJob removes a job, its pages, and its thumbnails.
func (h *Handlers) DeleteHistoryJob(c *fiber.Ctx) error {
	if h.store == nil {
		return historyUnavailable(c)
	}

	deleted, err := h.store.DeleteJob(c.Context(), c.Params("id"))
	if err != nil {
		h.log.Error().Err(err).Str("job_id", c.Params("id")).Msg("Failed to delete job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete job",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}
	return c.JSON(fiber.Map{"deleted": true})
}

// HistoryStats returns aggregate counters over all jobs.
func (h *Handlers) HistoryStats(c *fiber.Ctx) error {
	if h.store == nil {
		return historyUnavailable(c)
	}

	stats, err := h.store.GetStats(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load history stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history stats",
		})
	}
	return c.JSON(stats)
}

func historyUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "History is not available",
	})
}
