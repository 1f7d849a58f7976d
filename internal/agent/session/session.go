// Package session holds the per-session context handed to the orchestrator
// and every capability: upload slots, the session cart and the artifacts a
// turn produced.
package session

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/retailchat-ai/server/internal/agent/model"
)

const (
	TabularSlot = "upload.csv"
	ImageSlot   = "product_image.png"
)

// Slots are the single-slot upload locations of one session.
type Slots struct {
	Dir     string
	Tabular string
	Image   string
}

// SlotsFor returns the upload slots of sessionID below uploadDir.
func SlotsFor(uploadDir, sessionID string) Slots {
	dir := filepath.Join(uploadDir, sessionID)
	return Slots{
		Dir:     dir,
		Tabular: filepath.Join(dir, TabularSlot),
		Image:   filepath.Join(dir, ImageSlot),
	}
}

// Context is the session-scoped state of one chat session.
type Context struct {
	ID    string
	Slots Slots

	cart model.CartStore

	mu   sync.Mutex
	turn Outcome
}

// Outcome is what capabilities reported during one turn.
type Outcome struct {
	Tool      string
	Artifacts []model.Artifact
	Notices   []string
}

func New(id string, slots Slots, cart model.CartStore) *Context {
	return &Context{ID: id, Slots: slots, cart: cart}
}

func (c *Context) AddToCart(ctx context.Context, item model.CartItem) error {
	return c.cart.Add(ctx, c.ID, item)
}

func (c *Context) Cart(ctx context.Context) ([]model.CartItem, error) {
	return c.cart.Items(ctx, c.ID)
}

func (c *Context) EmptyCart(ctx context.Context) error {
	return c.cart.Empty(ctx, c.ID)
}

// Record registers an artifact produced during the current turn.
func (c *Context) Record(a model.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn.Artifacts = append(c.turn.Artifacts, a)
}

// Ran notes the capability that executed during the current turn.
func (c *Context) Ran(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn.Tool = tool
}

// Notify queues a message for the user outside the assistant reply.
func (c *Context) Notify(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn.Notices = append(c.turn.Notices, msg)
}

// Drain returns and forgets everything recorded since the last call.
func (c *Context) Drain() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.turn
	c.turn = Outcome{}
	return out
}

type ctxKey struct{}

func WithContext(ctx context.Context, s *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Context, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Context)
	return s, ok && s != nil
}
