package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes attaches all endpoints to the app.
func RegisterRoutes(app *fiber.App, h *Handlers) {
	app.Get("/", h.Health)
	app.Get("/health", h.Health)

	app.Post("/process-pdf", h.ProcessPDF)
	app.Post("/extract-text", h.ExtractText)

	// /history/stats must register before /history/:id.
	app.Get("/history/stats", h.HistoryStats)
	app.Get("/history", h.ListHistory)
	app.Get("/history/:id", h.GetHistoryJob)
	app.Delete("/history/:id", h.DeleteHistoryJob)

	if h.store != nil {
		app.Static("/static/images", h.store.ImagesDir())
	}
}
