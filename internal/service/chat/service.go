// Package chat 会话编排：持久化问答对、调用查询引擎、生成会话标题
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/query"
	"github.com/google/uuid"
)

const (
	maxMessageChars = 2000
	maxTitleChars   = 500
	lastMessageLen  = 100

	defaultSessionLimit = 20
	defaultMessageLimit = 50
	maxPageLimit        = 100

	chatTopK = 5
)

var (
	// ErrSessionNotFound 会话不存在或不属于该租户
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidMessage 消息为空或过长
	ErrInvalidMessage = errors.New("message must be between 1 and 2000 characters")
	// ErrInvalidTitle 标题为空或过长
	ErrInvalidTitle = errors.New("title must be between 1 and 500 characters")
)

// Answerer 查询引擎
type Answerer interface {
	Answer(ctx context.Context, req query.Request) *query.Result
}

// Service 聊天服务
type Service struct {
	sessions repository.SessionStore
	answerer Answerer
	titler   *Titler
	log      *logger.Logger
	now      func() time.Time
}

// NewService 创建聊天服务
func NewService(sessions repository.SessionStore, answerer Answerer, titler *Titler, log *logger.Logger) *Service {
	return &Service{
		sessions: sessions,
		answerer: answerer,
		titler:   titler,
		log:      log.With("component", "ChatService"),
		now:      time.Now,
	}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	SessionID    string   `json:"session_id"`
	Message      string   `json:"message"`
	DocumentIDs  []string `json:"document_ids"`
	UseReranking bool     `json:"use_reranking"`
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	SessionID        string             `json:"session_id"`
	SessionTitle     string             `json:"session_title"`
	TitleUpdated     bool               `json:"title_updated"`
	UserMessage      *model.ChatMessage `json:"user_message"`
	AssistantMessage *model.ChatMessage `json:"assistant_message"`
}

// SendMessage persists the user message, answers it, persists the reply and,
// on the session's first exchange, replaces the placeholder title.
func (s *Service) SendMessage(ctx context.Context, tenantID string, req SendMessageRequest) (*SendMessageResponse, error) {
	message := strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(message); n == 0 || n > maxMessageChars {
		return nil, ErrInvalidMessage
	}

	session, err := s.getOrCreateSession(ctx, tenantID, req.SessionID)
	if err != nil {
		return nil, err
	}

	userAt := s.timestamp()
	userMsg := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		UserID:    tenantID,
		Role:      model.RoleUser,
		Content:   message,
		CreatedAt: userAt,
	}
	if err := s.sessions.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	result := s.answerer.Answer(ctx, query.Request{
		TenantID:     tenantID,
		Question:     message,
		DocumentIDs:  req.DocumentIDs,
		TopK:         chatTopK,
		UseReranking: req.UseReranking,
	})

	// 助手消息必须严格晚于用户消息
	assistantAt := s.timestamp()
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Microsecond)
	}
	latency := result.LatencyMs
	assistantMsg := &model.ChatMessage{
		ID:             uuid.New().String(),
		SessionID:      session.ID,
		UserID:         tenantID,
		Role:           model.RoleAssistant,
		Content:        result.Answer,
		Sources:        model.SourceList(result.Sources),
		Reranked:       result.Reranked,
		ResponseTimeMs: &latency,
		CreatedAt:      assistantAt,
	}
	if err := s.sessions.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	count, err := s.sessions.RecordExchange(ctx, session.ID, assistantAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	resp := &SendMessageResponse{
		SessionID:        session.ID,
		SessionTitle:     session.Title,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}
	if count == 2 {
		title := s.titler.Generate(ctx, message)
		if err := s.sessions.UpdateTitle(ctx, tenantID, session.ID, title, assistantAt); err != nil {
			s.log.Warn("failed to save session title", "session_id", session.ID, "error", err)
		} else {
			resp.SessionTitle = title
			resp.TitleUpdated = true
		}
	}
	return resp, nil
}

func (s *Service) getOrCreateSession(ctx context.Context, tenantID, sessionID string) (*model.ChatSession, error) {
	if sessionID != "" {
		session, err := s.sessions.GetSession(ctx, tenantID, sessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return session, nil
	}

	now := s.timestamp()
	session := &model.ChatSession{
		ID:        uuid.New().String(),
		UserID:    tenantID,
		Title:     model.DefaultSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Info("created chat session", "session_id", session.ID, "tenant_id", tenantID)
	return session, nil
}

// SessionSummary 会话列表项
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastMessage  *string   `json:"last_message"`
}

// SessionPage 会话分页
type SessionPage struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int64            `json:"total"`
	HasMore  bool             `json:"has_more"`
	Cursor   *string          `json:"cursor"`
}

// ListSessions 按最近活动倒序分页
func (s *Service) ListSessions(ctx context.Context, tenantID string, limit int, cursor string) (*SessionPage, error) {
	limit = clampLimit(limit, defaultSessionLimit)

	sessions, err := s.sessions.ListSessions(ctx, tenantID, parseCursor(cursor), limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	hasMore := len(sessions) > limit
	if hasMore {
		sessions = sessions[:limit]
	}

	page := &SessionPage{Sessions: make([]SessionSummary, 0, len(sessions)), HasMore: hasMore}
	for _, session := range sessions {
		item := SessionSummary{
			SessionID:    session.ID,
			Title:        session.Title,
			MessageCount: session.MessageCount,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
		}
		last, err := s.sessions.LatestMessage(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load last message: %w", err)
		}
		if last != nil {
			preview := truncateRunes(last.Content, lastMessageLen)
			item.LastMessage = &preview
		}
		page.Sessions = append(page.Sessions, item)
	}

	if page.Total, err = s.sessions.CountSessions(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	if hasMore && len(sessions) > 0 {
		c := formatCursor(sessions[len(sessions)-1].UpdatedAt)
		page.Cursor = &c
	}
	return page, nil
}

// MessagePage 消息分页，按时间正序
type MessagePage struct {
	Messages []*model.ChatMessage `json:"messages"`
	Total    int64                `json:"total"`
	HasMore  bool                 `json:"has_more"`
	Cursor   *string              `json:"cursor"`
}

// ListMessages pages backwards from the cursor and returns the page in
// chronological order.
func (s *Service) ListMessages(ctx context.Context, tenantID, sessionID string, limit int, cursor string) (*MessagePage, error) {
	if _, err := s.getSession(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultMessageLimit)

	messages, err := s.sessions.ListMessages(ctx, sessionID, parseCursor(cursor), limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	page := &MessagePage{Messages: messages, HasMore: hasMore}
	if page.Messages == nil {
		page.Messages = []*model.ChatMessage{}
	}
	if page.Total, err = s.sessions.CountMessages(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if hasMore && len(messages) > 0 {
		c := formatCursor(messages[0].CreatedAt)
		page.Cursor = &c
	}
	return page, nil
}

// RenameSession 重命名会话
func (s *Service) RenameSession(ctx context.Context, tenantID, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleChars {
		return ErrInvalidTitle
	}
	err := s.sessions.UpdateTitle(ctx, tenantID, sessionID, title, s.timestamp())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// DeleteSession 删除会话及其全部消息
func (s *Service) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	err := s.sessions.DeleteSession(ctx, tenantID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *Service) getSession(ctx context.Context, tenantID, sessionID string) (*model.ChatSession, error) {
	session, err := s.sessions.GetSession(ctx, tenantID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// timestamp UTC, truncated to the microsecond precision the database keeps
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// parseCursor 无法解析的游标视为没有游标
func parseCursor(cursor string) *time.Time {
	if cursor == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func formatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
