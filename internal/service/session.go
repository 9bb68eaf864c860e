package service

import (
	"fmt"
	"io"
	"strings"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/export"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultSessionKey 是未指定会话时使用的会话标识。
	DefaultSessionKey = "default"
	// MaxSessionKeyLength 是会话标识的最大字节数。
	MaxSessionKeyLength = 128
)

// NormalizeSessionKey 去掉首尾空白，空值映射为默认会话，过长时返回 ErrInvalidSessionKey。
func NormalizeSessionKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultSessionKey, nil
	}
	if len(key) > MaxSessionKeyLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidSessionKey, MaxSessionKeyLength)
	}
	return key, nil
}

// SessionService 提供会话的只读查询和导出，供 REST 接口使用。
// 所有查询都不会创建会话。
type SessionService struct {
	sessionRepo repository.SessionRepository
}

// NewSessionService 创建 SessionService 实例。
func NewSessionService(sessionRepo repository.SessionRepository) *SessionService {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionService")
	}
	return &SessionService{sessionRepo: sessionRepo}
}

// GetState 返回会话快照。
func (s *SessionService) GetState(sessionKey string) (domain.Snapshot, error) {
	key, err := NormalizeSessionKey(sessionKey)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return s.sessionRepo.SessionState(key), nil
}

// ListParticipants 返回会话参与者。
func (s *SessionService) ListParticipants(sessionKey string) ([]domain.Participant, error) {
	key, err := NormalizeSessionKey(sessionKey)
	if err != nil {
		return nil, err
	}
	return s.sessionRepo.ListParticipants(key), nil
}

// ListSessions 返回所有会话的计数。
func (s *SessionService) ListSessions() []domain.SessionStats {
	stats := s.sessionRepo.Stats()
	if stats == nil {
		return []domain.SessionStats{}
	}
	return stats
}

// ExportPDF 把会话当前生效的笔画渲染成 PDF 写入 w。
func (s *SessionService) ExportPDF(sessionKey string, w io.Writer) error {
	key, err := NormalizeSessionKey(sessionKey)
	if err != nil {
		return err
	}
	logCtx := logrus.WithFields(logrus.Fields{"session_key": key, "operation": "ExportPDF"})

	snap := s.sessionRepo.SessionState(key)
	skipped, err := export.RenderPDF(w, snap.Strokes)
	if err != nil {
		logCtx.WithError(err).Error("Failed to render pdf")
		return fmt.Errorf("%w: %v", ErrInternalServer, err)
	}
	logCtx.WithFields(logrus.Fields{
		"strokes": len(snap.Strokes),
		"skipped": skipped,
	}).Info("Session exported as pdf")
	return nil
}
