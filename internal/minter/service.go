package minter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type assetUploader interface {
	Upload(ctx context.Context, fileName, contentType string, data []byte) (string, error)
}

type chainMinter interface {
	WriteConfigLine(ctx context.Context, slot uint32, name, uri string) (string, error)
	MintTo(ctx context.Context, owner string, manifest Manifest, uri string) (string, string, error)
}

// Request is one upload-and-mint call
type Request struct {
	Asset            []byte
	Certificate      []byte
	SlotIndex        uint32
	Manifest         Manifest
	RecipientAddress string
}

// Result describes a finished mint
type Result struct {
	MintTxID        string
	MintAddress     string
	ConfigLineTxID  string
	AssetLink       string
	ImageLink       string
	CertificateLink string
}

// Service uploads the files of an item and mints it
type Service struct {
	uploader assetUploader
	chain    chainMinter
	logger   *slog.Logger
}

// NewService creates a new minting service
func NewService(uploader assetUploader, chain chainMinter, logger *slog.Logger) *Service {
	return &Service{
		uploader: uploader,
		chain:    chain,
		logger:   logger,
	}
}

// UploadAndMint uploads the image, optional certificate and manifest, claims the
// slot in the collection config and mints the item to the recipient.
// Nothing here is retried once the slot has been claimed.
func (s *Service) UploadAndMint(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	imageLink, err := s.uploader.Upload(ctx, ImageFileName, pngContentType, req.Asset)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	res.ImageLink = imageLink

	if len(req.Certificate) > 0 {
		certLink, err := s.uploader.Upload(ctx, CertificateFileName, pngContentType, req.Certificate)
		if err != nil {
			return nil, fmt.Errorf("failed to upload certificate: %w", err)
		}
		res.CertificateLink = certLink
	}

	manifest := req.Manifest.withLinks(res.ImageLink, res.CertificateLink)
	body, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	res.AssetLink, err = s.uploader.Upload(ctx, ManifestFileName, jsonContentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}

	res.ConfigLineTxID, err = s.chain.WriteConfigLine(ctx, req.SlotIndex, manifest.Name, res.AssetLink)
	if err != nil {
		return nil, fmt.Errorf("failed to claim slot %d: %w", req.SlotIndex, err)
	}

	res.MintAddress, res.MintTxID, err = s.chain.MintTo(ctx, req.RecipientAddress, manifest, res.AssetLink)
	if err != nil {
		return nil, fmt.Errorf("failed to mint slot %d: %w", req.SlotIndex, err)
	}

	s.logger.Info("Upload and mint completed",
		slog.Uint64("slot", uint64(req.SlotIndex)),
		slog.String("recipient", req.RecipientAddress),
		slog.String("asset_link", res.AssetLink),
		slog.String("mint_tx_id", res.MintTxID),
	)

	return res, nil
}
