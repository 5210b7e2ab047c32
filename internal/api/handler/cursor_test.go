package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mintgate/internal/api/storage"
)

func TestRecordCursor(t *testing.T) {
	in := &storage.RecordCursor{
		CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC),
		RecordID:  "0d2d7a5e-9a1b-4c55-8f0c-1d7f3c1a2b3c",
	}

	out, err := DecodeRecordCursor(EncodeRecordCursor(in))
	require.NoError(t, err)
	assert.Equal(t, in.RecordID, out.RecordID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}

func TestDecodeRecordCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "!!!"},
		{name: "no separator", cursor: "MTIz"},
		{name: "empty record id", cursor: "MTIzfA"},
		{name: "non numeric time", cursor: "YWJjfHg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecordCursor(tt.cursor)
			assert.Error(t, err)
		})
	}

	c, err := DecodeRecordCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}
