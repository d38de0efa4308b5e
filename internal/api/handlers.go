// Package api contains the HTTP handlers for the OCR service.
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scanworks/ocrserve/internal/config"
	"github.com/scanworks/ocrserve/internal/history"
	"github.com/scanworks/ocrserve/internal/pdf"
	"github.com/scanworks/ocrserve/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	proc  *service.Processor
	store *history.Store
	cfg   *config.Config
	log   zerolog.Logger
}

// NewHandlers creates a new handlers instance. store may be nil when history
// is disabled or unavailable.
func NewHandlers(proc *service.Processor, store *history.Store, cfg *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		proc:  proc,
		store: store,
		cfg:   cfg,
		log:   log,
	}
}

// Health returns the service health status.
func (h *Handlers) Health(c *fiber.Ctx) error {
	engineOK := true
	if probe, ok := h.proc.Engine.(interface{ Available() bool }); ok {
		engineOK = probe.Available()
	}
	embedOK := true
	if probe, ok := h.proc.Embedder.(interface{ Available() bool }); ok {
		embedOK = probe.Available()
	}
	return c.JSON(fiber.Map{
		"status":            "healthy",
		"service":           "ocr-service",
		"version":           Version,
		"ocr_engine":        h.proc.Engine.Name(),
		"ocr_engine_ready":  engineOK,
		"ocrmypdf_ready":    embedOK,
		"history_available": h.store != nil,
		"timestamp":         time.Now().UTC(),
	})
}

// ProcessPDF runs the full pipeline and responds with the searchable PDF.
func (h *Handlers) ProcessPDF(c *fiber.Ctx) error {
	up, dpi, err := h.acceptUpload(c)
	if err != nil {
		return renderValidationError(c, err)
	}

	out, doc, err := h.proc.ProcessPDF(c.Context(), up.filename, up.content, dpi)
	if err != nil {
		return h.processingError(c, "Error processing PDF", err)
	}

	h.log.Info().
		Str("filename", up.filename).
		Int("pages", len(doc.Pages)).
		Int("output_bytes", len(out)).
		Msg("Processed PDF")

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "ocr_"+up.filename))
	return c.Send(out)
}

// ExtractText runs OCR and responds with the text/bounding-box report.
func (h *Handlers) ExtractText(c *fiber.Ctx) error {
	up, dpi, err := h.acceptUpload(c)
	if err != nil {
		return renderValidationError(c, err)
	}

	doc, err := h.proc.ExtractText(c.Context(), up.filename, up.content, dpi)
	if err != nil {
		return h.processingError(c, "Error extracting text", err)
	}

	h.log.Info().
		Str("filename", up.filename).
		Int("pages", len(doc.Pages)).
		Int("characters", len(doc.FullText)).
		Msg("Extracted text")

	return c.JSON(doc)
}

type upload struct {
	filename string
	content  []byte
}

// validationError carries the HTTP status and message for a rejected request.
type validationError struct {
	status  int
	message string
	details string
}

func (e *validationError) Error() string { return e.message }

func reject(status int, message, details string) *validationError {
	return &validationError{status: status, message: message, details: details}
}

// acceptUpload validates the multipart upload and the dpi parameter,
// returning a *validationError on rejection.
func (h *Handlers) acceptUpload(c *fiber.Ctx) (upload, int, error) {
	dpi, err := h.parseDPI(c)
	if err != nil {
		return upload{}, 0, reject(fiber.StatusBadRequest, err.Error(), "")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return upload{}, 0, reject(fiber.StatusBadRequest,
			"No file uploaded or invalid multipart form", err.Error())
	}

	if fileHeader.Size > h.cfg.MaxUploadBytes() {
		return upload{}, 0, reject(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large: %d bytes. Maximum size is %d MB",
				fileHeader.Size, h.cfg.Server.MaxUploadMB), "")
	}

	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		return upload{}, 0, reject(fiber.StatusBadRequest, "File must be a PDF", "")
	}

	content, err := readUpload(fileHeader)
	if err != nil {
		return upload{}, 0, reject(fiber.StatusBadRequest,
			"Failed to read uploaded file", err.Error())
	}

	if !pdf.IsPDF(content) {
		return upload{}, 0, reject(fiber.StatusBadRequest, "File must be a PDF", "")
	}

	return upload{filename: fileHeader.Filename, content: content}, dpi, nil
}

func renderValidationError(c *fiber.Ctx, err error) error {
	var vErr *validationError
	if !errors.As(err, &vErr) {
		vErr = reject(fiber.StatusBadRequest, err.Error(), "")
	}
	body := fiber.Map{"error": vErr.message}
	if vErr.details != "" {
		body["details"] = vErr.details
	}
	return c.Status(vErr.status).JSON(body)
}

func (h *Handlers) parseDPI(c *fiber.Ctx) (int, error) {
	raw := c.Query("dpi")
	if raw == "" {
		return h.cfg.OCR.DefaultDPI, nil
	}
	dpi, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("dpi must be an integer, got %q", raw)
	}
	if dpi < h.cfg.OCR.MinDPI || dpi > h.cfg.OCR.MaxDPI {
		return 0, fmt.Errorf("dpi must be between %d and %d, got %d",
			h.cfg.OCR.MinDPI, h.cfg.OCR.MaxDPI, dpi)
	}
	return dpi, nil
}

func (h *Handlers) processingError(c *fiber.Ctx, msg string, err error) error {
	if errors.Is(err, service.ErrInvalidPDF) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "File is not a valid PDF",
			"details": err.Error(),
		})
	}
	h.log.Error().Err(err).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   msg,
		"details": err.Error(),
	})
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
