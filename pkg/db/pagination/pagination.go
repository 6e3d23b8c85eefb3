package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// NormalizePageSize clamps size into [1, MaxPageSize], defaulting non-positive values.
func NormalizePageSize(size int32) int32 {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows and trims the extra row.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	if len(data) <= int(limit) {
		return data, &PageInfo{HasMore: false}
	}

	data = data[:limit]
	return data, &PageInfo{
		HasMore:       true,
		NextPageToken: extractCursor(data[len(data)-1]),
	}
}
