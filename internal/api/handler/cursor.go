package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/mintgate/internal/api/storage"
)

// DecodeRecordCursor parses an opaque page cursor; empty means first page
func DecodeRecordCursor(cursorStr string) (*storage.RecordCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdPart, recordID, ok := strings.Cut(string(decoded), "|")
	if !ok || recordID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	createdAt, err := strconv.ParseInt(createdPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.RecordCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		RecordID:  recordID,
	}, nil
}

// EncodeRecordCursor renders the cursor of the row a page ended on
func EncodeRecordCursor(cursor *storage.RecordCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.RecordID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
