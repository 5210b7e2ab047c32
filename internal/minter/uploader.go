package minter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// UploaderConfig holds asset gateway configuration
type UploaderConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// Uploader stores files permanently through an asset storage gateway
type Uploader struct {
	http   *resty.Client
	logger *slog.Logger
}

type uploadResponse struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// NewUploader creates a new uploader. Failed uploads are retried inside resty.
func NewUploader(cfg *UploaderConfig, logger *slog.Logger) *Uploader {
	c := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(8 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}

	return &Uploader{http: c, logger: logger}
}

// Upload stores data and returns its permanent link
func (u *Uploader) Upload(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	var out uploadResponse

	resp, err := u.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetQueryParam("filename", fileName).
		SetBody(data).
		SetResult(&out).
		Post("/upload")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileName, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: gateway returned status %d", fileName, resp.StatusCode())
	}
	if out.Link == "" {
		return "", errors.New("upload " + fileName + ": gateway returned no link")
	}

	u.logger.Info("Asset uploaded",
		slog.String("file", fileName),
		slog.Int("size", len(data)),
		slog.String("link", out.Link),
	)

	return out.Link, nil
}
