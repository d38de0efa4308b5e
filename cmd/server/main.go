// Package main provides the entry point for the OCR service.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/scanworks/ocrserve/internal/api"
	"github.com/scanworks/ocrserve/internal/config"
	"github.com/scanworks/ocrserve/internal/history"
	"github.com/scanworks/ocrserve/internal/ocr"
	"github.com/scanworks/ocrserve/internal/pdf"
	"github.com/scanworks/ocrserve/internal/service"
	"github.com/scanworks/ocrserve/pkg/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("OCR_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet.
		panic(err)
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	log := logging.GetLogger("server")

	// History is optional: a failed open degrades the service to OCR-only.
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.New(cfg.History.DataDir, logging.GetLogger("history"))
		if err != nil {
			log.Warn().Err(err).Msg("History unavailable, continuing without it")
			store = nil
		} else {
			defer store.Close()
		}
	}

	proc := &service.Processor{
		Engine:     ocr.NewTesseractEngine(cfg.OCR.Languages),
		Rasterizer: pdf.NewRasterizer(cfg.Tools.Pdftoppm, cfg.Tools.Pdfinfo),
		Embedder:   pdf.NewEmbedder(cfg.Tools.OCRmyPDF, cfg.OCR.Languages),
		History:    store,
		Timeout:    time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		Log:        logging.GetLogger("pipeline"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "OCR Service",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.MaxUploadBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	handlers := api.NewHandlers(proc, store, cfg, logging.GetLogger("api"))
	api.RegisterRoutes(app, handlers)

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Info().Msg("Shutting down")
		timeout := time.Duration(cfg.Server.ShutdownSeconds) * time.Second
		if err := app.ShutdownWithTimeout(timeout); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().
		Str("address", cfg.Server.Address).
		Strs("languages", cfg.OCR.Languages).
		Bool("history", store != nil).
		Msg("OCR service listening")

	if err := app.Listen(cfg.Server.Address); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
	<-done
}
