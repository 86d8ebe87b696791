// Package orders creates main orders and projects their derived status.
package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

// Catalog is the read-only template lookup orders are validated against.
type Catalog interface {
	Template(id string) (models.TaskTemplate, bool)
}

type CreateOrderInput struct {
	TemplateID      string
	PublisherID     uuid.UUID
	MaxParticipants int
	// UnitPrice overrides the template price when set.
	UnitPrice    *decimal.Decimal
	Requirements string
}

// View is a main order with its sub-orders and the projections derived from
// them, all read from one snapshot.
type View struct {
	Order       *models.MainOrder    `json:"order"`
	SubOrders   []*models.SubOrder   `json:"sub_orders"`
	Status      models.OrderStatus   `json:"status"`
	StatusLabel string               `json:"status_label"`
	Progress    Progress             `json:"progress"`
	Template    *models.TaskTemplate `json:"template,omitempty"`
}

type Service struct {
	store           repository.Store
	catalog         Catalog
	maxParticipants int
	log             *slog.Logger

	Now func() time.Time
}

func NewService(store repository.Store, catalog Catalog, maxParticipants int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, catalog: catalog, maxParticipants: maxParticipants, log: logger, Now: time.Now}
}

// CreateOrder persists the main order and all of its pending sub-orders in a
// single transaction.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*View, error) {
	tpl, ok := s.catalog.Template(in.TemplateID)
	if !ok {
		return nil, models.ErrInvalidTemplate
	}
	if in.MaxParticipants <= 0 || (s.maxParticipants > 0 && in.MaxParticipants > s.maxParticipants) {
		return nil, models.ErrInvalidQuantity
	}
	price := tpl.UnitPrice
	if in.UnitPrice != nil {
		price = *in.UnitPrice
	}
	if price.IsNegative() || !models.WholeCents(price) {
		return nil, models.ErrInvalidPrice
	}

	now := s.Now()
	order := &models.MainOrder{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		PublisherID:     in.PublisherID,
		MaxParticipants: in.MaxParticipants,
		UnitPrice:       price,
		Budget:          price.Mul(decimal.NewFromInt(int64(in.MaxParticipants))),
		Requirements:    in.Requirements,
		CreatedAt:       now,
	}
	subs := make([]*models.SubOrder, in.MaxParticipants)
	for i := range subs {
		subs[i] = &models.SubOrder{
			ID:          uuid.New(),
			MainOrderID: order.ID,
			Seq:         i + 1,
			Status:      models.SubOrderPending,
			Reward:      price,
		}
		order.SubOrderIDs = append(order.SubOrderIDs, subs[i].ID)
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Orders().CreateMainOrder(ctx, order); err != nil {
			return err
		}
		for _, sub := range subs {
			if err := tx.Orders().CreateSubOrder(ctx, sub); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", "order_id", order.ID, "template_id", order.TemplateID, "publisher_id", order.PublisherID,
		"max_participants", order.MaxParticipants, "budget", order.Budget)
	return s.view(order, subs), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	var v *View
	err := s.store.View(ctx, func(tx repository.Tx) error {
		order, err := tx.Orders().MainOrder(ctx, id)
		if err != nil {
			return err
		}
		subs, err := tx.Orders().SubOrders(ctx, id)
		if err != nil {
			return err
		}
		v = s.view(order, subs)
		return nil
	})
	return v, err
}

// ListByPublisher returns the publisher's orders, newest first.
func (s *Service) ListByPublisher(ctx context.Context, publisherID uuid.UUID) ([]*View, error) {
	return s.list(ctx, func(tx repository.Tx) ([]*models.MainOrder, error) {
		return tx.Orders().MainOrdersByPublisher(ctx, publisherID)
	})
}

// ListOpen returns orders commenters can still claim from, newest first.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*View, error) {
	return s.list(ctx, func(tx repository.Tx) ([]*models.MainOrder, error) {
		return tx.Orders().OpenMainOrders(ctx, limit)
	})
}

func (s *Service) list(ctx context.Context, load func(repository.Tx) ([]*models.MainOrder, error)) ([]*View, error) {
	var views []*View
	err := s.store.View(ctx, func(tx repository.Tx) error {
		list, err := load(tx)
		if err != nil {
			return err
		}
		for _, order := range list {
			subs, err := tx.Orders().SubOrders(ctx, order.ID)
			if err != nil {
				return err
			}
			views = append(views, s.view(order, subs))
		}
		return nil
	})
	return views, err
}

// Archive closes an order once none of its sub-orders can change any more.
func (s *Service) Archive(ctx context.Context, id, publisherID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		order, err := tx.Orders().LockMainOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.PublisherID != publisherID {
			return models.ErrNotOwner
		}
		if order.ArchivedAt != nil {
			return models.ErrOrderArchived
		}
		subs, err := tx.Orders().SubOrders(ctx, id)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if !sub.Status.Terminal() {
				return models.ErrNotArchivable
			}
		}
		return tx.Orders().ArchiveMainOrder(ctx, id, s.Now())
	})
}

func (s *Service) view(order *models.MainOrder, subs []*models.SubOrder) *View {
	status := DeriveStatus(subs)
	v := &View{
		Order:       order,
		SubOrders:   subs,
		Status:      status,
		StatusLabel: StatusLabel(status),
		Progress:    ComputeProgress(subs),
	}
	if tpl, ok := s.catalog.Template(order.TemplateID); ok {
		v.Template = &tpl
	}
	if v.Progress.Total() != order.MaxParticipants {
		s.log.Error("progress does not match participant count", "order_id", order.ID,
			"counted", v.Progress.Total(), "max_participants", order.MaxParticipants)
	}
	return v
}
