package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ideaboard/ideaboard/internal/api/storage"
)

func DecodeSessionCursor(cursorStr string) (*storage.SessionCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var startedAt int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid startedAt in cursor: %w", err)
	}

	return &storage.SessionCursor{
		StartedAt: time.Unix(0, startedAt),
		SessionID: decodedParts[1],
	}, nil
}

func EncodeSessionCursor(cursor *storage.SessionCursor) (string, error) {
	cs := fmt.Sprintf("%d|%s", cursor.StartedAt.UnixNano(), cursor.SessionID)
	return base64.StdEncoding.EncodeToString([]byte(cs)), nil
}
