package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/mintgate/internal/api/dto"
	"github.com/cuongbtq/mintgate/internal/api/model"
	"github.com/cuongbtq/mintgate/internal/api/storage"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
	"github.com/cuongbtq/mintgate/internal/worker"
)

// SubmitMint handles POST /api/v1/mints
// Queues a paid mint and returns the queued status
func (h *MintHandler) SubmitMint(c *gin.Context) {
	var req dto.SubmitMintRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid submit request", slog.String("error", err.Error()))
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "name and payment_reference are required"})
		return
	}

	image, err := h.readFile(c, "image", true)
	if err != nil {
		h.writeError(c, err)
		return
	}
	certificate, err := h.readFile(c, "certificate", false)
	if err != nil {
		h.writeError(c, err)
		return
	}

	job := &domain.MintJob{
		JobID:            uuid.New().String(),
		PaymentReference: req.PaymentReference,
		Name:             req.Name,
		PaymentTier:      domain.PaymentTier(req.PaymentTier),
		PrimaryImage:     image,
		CertificateImage: certificate,
		SubmittedAt:      time.Now().UTC(),
	}

	status, err := h.worker.Submit(job)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitMintResponse{
		JobID:            job.JobID,
		PaymentReference: job.PaymentReference,
		Status:           status,
	})
}

// GetStatus handles GET /api/v1/mints/:payment_reference/status
func (h *MintHandler) GetStatus(c *gin.Context) {
	reference := c.Param("payment_reference")

	status, err := h.statuses.Get(reference)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetMint handles GET /api/v1/mints/:payment_reference
// Returns the journal record of a finished job
func (h *MintHandler) GetMint(c *gin.Context) {
	rec, err := h.journal.GetRecord(c.Request.Context(), c.Param("payment_reference"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMintDTO(rec))
}

// ListMints handles GET /api/v1/mints
// Lists journal records with filtering and cursor pagination
func (h *MintHandler) ListMints(c *gin.Context) {
	var req dto.ListMintsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeRecordCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	records, err := h.journal.ListRecords(c.Request.Context(), storage.RecordFilter{
		State:        req.State,
		PayerAddress: req.PayerAddress,
		PageSize:     req.PageSize,
		Cursor:       cursor,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	resp := dto.ListMintsResponse{Mints: make([]dto.MintDTO, len(records))}
	for i := range records {
		resp.Mints[i] = toMintDTO(&records[i])
	}

	if hasMore {
		last := records[len(records)-1]
		resp.NextCursor = EncodeRecordCursor(&storage.RecordCursor{
			CreatedAt: last.CreatedAt,
			RecordID:  last.RecordID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// readFile reads a form file, stopping one byte past the upload limit
// so the worker can reject it as oversize.
func (h *MintHandler) readFile(c *gin.Context, field string, required bool) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, nil
		}
		if isBodyTooLarge(err) {
			return nil, err
		}
		return nil, domain.NewValidationError(field, field+" is required")
	}

	return readLimited(fh, h.maxUploadBytes)
}

func readLimited(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return data, nil
}

func (h *MintHandler) writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError

	switch {
	case isBodyTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "request body too large"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: validationErr.Reason, Field: validationErr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domain.ErrNotFound.Error()})
	case errors.Is(err, domain.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, worker.ErrWorkerStopped):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func toMintDTO(rec *model.MintRecord) dto.MintDTO {
	return dto.MintDTO{
		JobID:            rec.JobID,
		PaymentReference: rec.PaymentReference,
		Name:             rec.Name,
		PaymentTier:      rec.PaymentTier,
		State:            rec.State,
		Message:          rec.Message,
		SlotIndex:        rec.SlotIndex,
		PayerAddress:     rec.PayerAddress,
		MintTxID:         rec.MintTxID,
		MintAddress:      rec.MintAddress,
		AssetLink:        rec.AssetLink,
		CertificateLink:  rec.CertificateLink,
		SubmittedAt:      rec.SubmittedAt.Format(time.RFC3339),
		FinishedAt:       rec.FinishedAt.Format(time.RFC3339),
	}
}
