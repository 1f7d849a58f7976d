package repo

import (
	"context"
	"sync"

	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
)

// MemoryConversationRepository keeps conversations for the process lifetime.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{conversations: map[string]*model.Conversation{}}
}

func (r *MemoryConversationRepository) get(id string) *model.Conversation {
	c, ok := r.conversations[id]
	if !ok {
		c = &model.Conversation{ID: id}
		r.conversations[id] = c
	}
	return c
}

func (r *MemoryConversationRepository) Load(_ context.Context, conversationID string) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &model.Conversation{ID: conversationID, Messages: []model.Message{}}
	if c, ok := r.conversations[conversationID]; ok {
		out.Messages = append(out.Messages, c.Messages...)
	}
	return out, nil
}

func (r *MemoryConversationRepository) Reset(_ context.Context, conversationID string, system string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(conversationID).Reset(system)
	return nil
}

func (r *MemoryConversationRepository) Append(_ context.Context, conversationID string, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(conversationID).Append(msg)
	return nil
}

func (r *MemoryConversationRepository) AnnotateLast(_ context.Context, conversationID string, metadata string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.get(conversationID).AnnotateLast(metadata) {
		return errx.NotFound("no message to annotate", nil)
	}
	return nil
}

func (r *MemoryConversationRepository) SetSystem(_ context.Context, conversationID string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.get(conversationID)
	if len(c.Messages) == 0 {
		c.Reset(content)
		return nil
	}
	c.Messages[0].Content = content
	return nil
}

func (r *MemoryConversationRepository) Count(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conversations[conversationID]; ok {
		return len(c.Messages), nil
	}
	return 0, nil
}

// MemoryCartStore is the in-process cart store.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string][]model.CartItem
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: map[string][]model.CartItem{}}
}

func (s *MemoryCartStore) Add(_ context.Context, sessionID string, item model.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionID] = append(s.carts[sessionID], item)
	return nil
}

func (s *MemoryCartStore) Items(_ context.Context, sessionID string) ([]model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CartItem, len(s.carts[sessionID]))
	copy(out, s.carts[sessionID])
	return out, nil
}

func (s *MemoryCartStore) Empty(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

var (
	_ model.ConversationRepository = (*MemoryConversationRepository)(nil)
	_ model.CartStore              = (*MemoryCartStore)(nil)
)
