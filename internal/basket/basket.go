// Package basket creates baskets, stages guest drafts and derives the dashboard views.
package basket

import (
	"context"
	"errors"
	"net/url"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

var (
	ErrNoDraft       = errors.New("no pending basket")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrMissingShop   = errors.New("shop is required")
)

type Backend interface {
	CreateBasketAndJoinPool(ctx context.Context, input api.BasketInput) (*api.JoinPoolResult, error)
	ListBaskets(ctx context.Context) ([]api.Basket, error)
	GetPool(ctx context.Context, poolID string) (*api.Pool, error)
}

type Accessor struct {
	Backend Backend
	Drafts  DraftStore
}

func NewAccessor(backend Backend, drafts DraftStore) *Accessor {
	return &Accessor{Backend: backend, Drafts: drafts}
}

type Created struct {
	Result api.JoinPoolResult
	// Path is where the client navigates next: the pool view.
	Path string
}

func validate(input api.BasketInput) error {
	if input.ShopID == "" {
		return ErrMissingShop
	}
	if input.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Create is all-or-nothing: on error nothing local changes and the backend's message is
// returned as is. On success the staged draft is cleared.
func (a *Accessor) Create(ctx context.Context, input api.BasketInput) (*Created, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	result, err := a.Backend.CreateBasketAndJoinPool(ctx, input)
	if err != nil {
		logger.Warn("basket_create_failed", map[string]interface{}{
			"shop_id": input.ShopID,
			"error":   err.Error(),
		})
		return nil, err
	}

	if a.Drafts != nil {
		if err := a.Drafts.Clear(); err != nil {
			logger.Warn("basket_draft_clear_failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return &Created{Result: *result, Path: "/pool/" + url.PathEscape(result.PoolID)}, nil
}

// SaveDraft stages a basket for after sign-in, replacing any earlier draft.
func (a *Accessor) SaveDraft(d Draft) error {
	if err := validate(d.Input()); err != nil {
		return err
	}
	return a.Drafts.Save(d)
}

// Draft returns the staged basket, or nil.
func (a *Accessor) Draft() (*Draft, error) {
	return a.Drafts.Load()
}

// SubmitDraft replays the staged basket once the user is signed in.
func (a *Accessor) SubmitDraft(ctx context.Context) (*Created, error) {
	d, err := a.Drafts.Load()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNoDraft
	}
	return a.Create(ctx, d.Input())
}

// Dashboard splits the user's baskets into active and resolved, keeping the backend's order.
func (a *Accessor) Dashboard(ctx context.Context) (active, resolved []api.Basket, err error) {
	baskets, err := a.Backend.ListBaskets(ctx)
	if err != nil {
		return nil, nil, err
	}
	active, resolved = lifecycle.PartitionBaskets(baskets)
	return active, resolved, nil
}

// PoolProgress loads a pool and derives its progress locally.
func (a *Accessor) PoolProgress(ctx context.Context, poolID string) (*api.Pool, lifecycle.Progress, error) {
	pool, err := a.Backend.GetPool(ctx, poolID)
	if err != nil {
		return nil, lifecycle.Progress{}, err
	}
	return pool, lifecycle.ProgressOf(pool.CurrentAmount, pool.MinAmount), nil
}
