package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// Local hands out room references without an external service. It backs
// development setups where no meeting service URL is configured.
type Local struct {
	baseURL string
	logger  *slog.Logger

	mu    sync.Mutex
	rooms map[string]string
}

// NewLocal returns a room provider whose references are links under baseURL.
func NewLocal(baseURL string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		baseURL: baseURL,
		logger:  logger.With("component", "meeting", "provider", "local"),
		rooms:   make(map[string]string),
	}
}

// CreateRoom returns the same reference for repeated requests of one session.
func (l *Local) CreateRoom(ctx context.Context, request outbox.MeetingRoomPayload) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ref, ok := l.rooms[request.SessionID]; ok {
		return ref, nil
	}
	ref := fmt.Sprintf("%s/room/%s", l.baseURL, request.SessionID)
	l.rooms[request.SessionID] = ref
	l.logger.InfoContext(ctx, "local meeting room opened", "session_id", request.SessionID, "room_ref", ref)
	return ref, nil
}

// CloseRoom forgets the room.
func (l *Local) CloseRoom(ctx context.Context, request outbox.MeetingClosePayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.rooms, request.SessionID)
	l.logger.InfoContext(ctx, "local meeting room closed", "session_id", request.SessionID)
	return nil
}
