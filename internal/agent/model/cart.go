package model

import "context"

type CartItem struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Description string `json:"description"`
	CompanyName string `json:"company_name"`
	Quantity    int    `json:"quantity"`
}

// CartStore keeps one cart per session.
type CartStore interface {
	Add(ctx context.Context, sessionID string, item CartItem) error
	Items(ctx context.Context, sessionID string) ([]CartItem, error)
	Empty(ctx context.Context, sessionID string) error
}
