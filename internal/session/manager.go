// Package session 维护每个会话在内存中的消息历史，并负责与回复生成方的每一次交互。
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"tzappu-go/internal/model"
	"tzappu-go/pkg/log"
)

const instrumentationName = "tzappu-go/internal/session"

// Generator 根据完整的有序历史生成下一条助手消息。
// 对 Manager 而言它是无状态的，每次调用都会收到完整历史。
type Generator interface {
	Generate(ctx context.Context, history []model.ChatMessage) (model.ChatMessage, error)
}

// GeneratorFunc 让普通函数满足 Generator 接口。
type GeneratorFunc func(ctx context.Context, history []model.ChatMessage) (model.ChatMessage, error)

// Generate 调用 f 本身。
func (f GeneratorFunc) Generate(ctx context.Context, history []model.ChatMessage) (model.ChatMessage, error) {
	return f(ctx, history)
}

// session 是一个活跃会话。turn 串行化同一会话上的所有修改操作（send/clear/replace），
// mu 只保护 messages，读取快照时不会被进行中的生成阻塞。
type session struct {
	turn     sync.Mutex
	mu       sync.RWMutex
	messages []model.ChatMessage

	// 以下字段由 Manager.mu 保护
	refs       int
	lastActive time.Time
}

func (s *session) snapshot() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.messages)
}

func (s *session) append(msg model.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *session) reset(messages []model.ChatMessage) {
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
}

func (s *session) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Option 配置 Manager。
type Option func(*Manager)

// WithIdleTimeout 设置空闲会话的淘汰时间，0 表示永不淘汰。
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithGenerationTimeout 为每次回复生成设置超时。
func WithGenerationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.generationTimeout = d }
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager 是会话注册表：进程启动时创建，显式清空或空闲超时时淘汰条目，停机时 Close。
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	generator         Generator
	idleTimeout       time.Duration
	generationTimeout time.Duration
	now               func() time.Time

	tracer      trace.Tracer
	generations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewManager 创建一个新的会话注册表。
func NewManager(generator Generator, opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*session),
		generator: generator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter(instrumentationName)
	m.tracer = otel.Tracer(instrumentationName)
	// 指标创建失败时 otel 会返回可用的 no-op 实例，这里只记录日志
	var err error
	if m.generations, err = meter.Int64Counter("chat.generations",
		metric.WithDescription("Number of reply generations attempted")); err != nil {
		log.Warnf("创建指标 chat.generations 失败: %v", err)
	}
	if m.failures, err = meter.Int64Counter("chat.generation.failures",
		metric.WithDescription("Number of failed reply generations")); err != nil {
		log.Warnf("创建指标 chat.generation.failures 失败: %v", err)
	}
	if m.latency, err = meter.Float64Histogram("chat.generation.duration",
		metric.WithDescription("Reply generation latency"), metric.WithUnit("s")); err != nil {
		log.Warnf("创建指标 chat.generation.duration 失败: %v", err)
	}
	return m
}

// acquire 取得会话引用；create 为 false 且会话不存在时返回 nil。
// 持有引用的会话不会被空闲清理淘汰。
func (m *Manager) acquire(sessionID string, create bool) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		if !create {
			return nil, nil
		}
		s = &session{}
		m.sessions[sessionID] = s
	}
	s.refs++
	s.lastActive = m.now()
	return s, nil
}

// release 归还引用。没有其他引用且历史为空的会话直接从注册表移除。
func (m *Manager) release(sessionID string, s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.refs--
	s.lastActive = m.now()
	if s.refs == 0 && s.size() == 0 && m.sessions[sessionID] == s {
		delete(m.sessions, sessionID)
	}
}

// Send 记录用户消息，携带完整历史调用生成方，并把助手回复追加到历史后返回。
// 生成失败时用户消息保留，不追加助手消息，返回 *GenerationError。
func (m *Manager) Send(ctx context.Context, sessionID, text string) (model.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	s, err := m.acquire(sessionID, true)
	if err != nil {
		return model.ChatMessage{}, err
	}
	defer m.release(sessionID, s)

	// 同一会话上的 send 串行执行；不同会话互不影响
	s.turn.Lock()
	defer s.turn.Unlock()

	s.append(model.NewChatMessage(model.RoleUser, text))
	history := s.snapshot()

	ctx, span := m.tracer.Start(ctx, "session.Send", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("history.length", len(history)),
	))
	defer span.End()

	reply, err := m.generate(ctx, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warnw("回复生成失败，用户消息已保留", "sessionId", sessionID, "historyLength", len(history), "error", err)
		return model.ChatMessage{}, err
	}

	s.append(reply)
	return reply, nil
}

// generate 调用生成方并校验结果；history 是调用方独占的副本。
func (m *Manager) generate(ctx context.Context, history []model.ChatMessage) (model.ChatMessage, error) {
	if m.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.generationTimeout)
		defer cancel()
	}

	start := time.Now()
	m.generations.Add(ctx, 1)
	reply, err := m.generator.Generate(ctx, history)
	m.latency.Record(ctx, time.Since(start).Seconds())

	if err == nil {
		// 生成方返回后才发现超时或取消，也视为失败，历史保持不变
		err = ctx.Err()
	}
	if err == nil && strings.TrimSpace(reply.Content) == "" {
		err = fmt.Errorf("empty reply content: %w", ErrMalformedReply)
	}
	if err != nil {
		m.failures.Add(ctx, 1)
		return model.ChatMessage{}, asGenerationError(err)
	}

	reply.Role = model.RoleAssistant
	if reply.Timestamp.IsZero() {
		reply.Timestamp = model.Now()
	}
	return reply, nil
}

// Clear 把会话历史重置为空。会话不存在时什么都不做。
func (m *Manager) Clear(sessionID string) {
	s, err := m.acquire(sessionID, false)
	if err != nil || s == nil {
		return
	}
	defer m.release(sessionID, s)

	s.turn.Lock()
	defer s.turn.Unlock()
	s.reset(nil)
}

// Replace 用给定消息整体替换会话历史（不合并），会话不存在时创建。
func (m *Manager) Replace(sessionID string, messages []model.ChatMessage) error {
	s, err := m.acquire(sessionID, true)
	if err != nil {
		return err
	}
	defer m.release(sessionID, s)

	s.turn.Lock()
	defer s.turn.Unlock()
	s.reset(model.CloneMessages(messages))
	return nil
}

// History 返回会话历史的只读快照，会话不存在时返回空切片。
func (m *Manager) History(sessionID string) []model.ChatMessage {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return []model.ChatMessage{}
	}
	return s.snapshot()
}

// EvictIdle 淘汰空闲超过 idleTimeout 的会话，返回淘汰数量。
// 正在处理请求的会话不会被淘汰。
func (m *Manager) EvictIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.refs == 0 && now.Sub(s.lastActive) > m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats 返回当前的会话统计信息。
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	busy := 0
	for _, s := range m.sessions {
		if s.refs > 0 {
			busy++
		}
	}
	return map[string]int{
		"total": len(m.sessions),
		"busy":  busy,
	}
}

// Close 拆除注册表，此后所有修改操作返回 ErrManagerClosed。
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = make(map[string]*session)
}
