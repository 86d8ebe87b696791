// Package memstore is an in-memory repository.Store. Transactions are
// serialized by a single writer lock and run against a private copy of the
// state, which replaces the shared state only when fn returns nil.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
	"github.com/commentgig/backend/internal/repository"
)

var errReadOnly = errors.New("memstore: write in read-only transaction")

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&tx{st: work, writable: true}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state})
}

type earningKey struct {
	subOrderID uuid.UUID
	kind       models.EarningKind
}

type state struct {
	mains       map[uuid.UUID]*models.MainOrder
	mainSeq     []uuid.UUID
	subs        map[uuid.UUID]*models.SubOrder
	earnings    []*models.EarningsRecord
	earningKeys map[earningKey]struct{}
	withdrawals map[uuid.UUID]*models.WithdrawalRequest
	withdrawSeq []uuid.UUID
	accounts    map[uuid.UUID]*models.CommenterAccount
}

func newState() *state {
	return &state{
		mains:       make(map[uuid.UUID]*models.MainOrder),
		subs:        make(map[uuid.UUID]*models.SubOrder),
		earningKeys: make(map[earningKey]struct{}),
		withdrawals: make(map[uuid.UUID]*models.WithdrawalRequest),
		accounts:    make(map[uuid.UUID]*models.CommenterAccount),
	}
}

// clone copies the maps and slices. Stored values are replaced, never
// mutated in place, so the pointers can be shared between copies.
func (st *state) clone() *state {
	cp := &state{
		mains:       make(map[uuid.UUID]*models.MainOrder, len(st.mains)),
		mainSeq:     append([]uuid.UUID(nil), st.mainSeq...),
		subs:        make(map[uuid.UUID]*models.SubOrder, len(st.subs)),
		earnings:    append([]*models.EarningsRecord(nil), st.earnings...),
		earningKeys: make(map[earningKey]struct{}, len(st.earningKeys)),
		withdrawals: make(map[uuid.UUID]*models.WithdrawalRequest, len(st.withdrawals)),
		withdrawSeq: append([]uuid.UUID(nil), st.withdrawSeq...),
		accounts:    make(map[uuid.UUID]*models.CommenterAccount, len(st.accounts)),
	}
	for k, v := range st.mains {
		cp.mains[k] = v
	}
	for k, v := range st.subs {
		cp.subs[k] = v
	}
	for k, v := range st.earningKeys {
		cp.earningKeys[k] = v
	}
	for k, v := range st.withdrawals {
		cp.withdrawals[k] = v
	}
	for k, v := range st.accounts {
		cp.accounts[k] = v
	}
	return cp
}

type tx struct {
	st       *state
	writable bool
}

func (t *tx) Orders() repository.Orders           { return t }
func (t *tx) Earnings() repository.Earnings       { return t }
func (t *tx) Withdrawals() repository.Withdrawals { return t }
func (t *tx) Accounts() repository.Accounts       { return t }

func (t *tx) write() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// --- orders ---

func (t *tx) CreateMainOrder(_ context.Context, o *models.MainOrder) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.mains[o.ID] = o.Clone()
	t.st.mainSeq = append(t.st.mainSeq, o.ID)
	return nil
}

func (t *tx) CreateSubOrder(_ context.Context, s *models.SubOrder) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.st.mains[s.MainOrderID]; !ok {
		return models.ErrOrderNotFound
	}
	t.st.subs[s.ID] = s.Clone()
	return nil
}

// LockMainOrder needs no row lock: the writer lock already serializes transactions.
func (t *tx) LockMainOrder(ctx context.Context, id uuid.UUID) (*models.MainOrder, error) {
	return t.MainOrder(ctx, id)
}

func (t *tx) MainOrder(_ context.Context, id uuid.UUID) (*models.MainOrder, error) {
	o, ok := t.st.mains[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return t.withSubIDs(o), nil
}

func (t *tx) withSubIDs(o *models.MainOrder) *models.MainOrder {
	cp := o.Clone()
	cp.SubOrderIDs = cp.SubOrderIDs[:0]
	for _, s := range t.subsOf(o.ID) {
		cp.SubOrderIDs = append(cp.SubOrderIDs, s.ID)
	}
	return cp
}

func (t *tx) subsOf(mainOrderID uuid.UUID) []*models.SubOrder {
	var out []*models.SubOrder
	for _, s := range t.st.subs {
		if s.MainOrderID == mainOrderID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (t *tx) SubOrder(_ context.Context, id uuid.UUID) (*models.SubOrder, error) {
	s, ok := t.st.subs[id]
	if !ok {
		return nil, models.ErrSubOrderNotFound
	}
	return s.Clone(), nil
}

func (t *tx) SubOrders(_ context.Context, mainOrderID uuid.UUID) ([]*models.SubOrder, error) {
	return cloneSubs(t.subsOf(mainOrderID)), nil
}

func (t *tx) UpdateSubOrder(_ context.Context, s *models.SubOrder) error {
	if err := t.write(); err != nil {
		return err
	}
	cur, ok := t.st.subs[s.ID]
	if !ok {
		return models.ErrSubOrderNotFound
	}
	if cur.Version != s.Version {
		return models.ErrConcurrentUpdate
	}
	next := s.Clone()
	next.MainOrderID, next.Seq, next.Reward = cur.MainOrderID, cur.Seq, cur.Reward
	next.Version++
	t.st.subs[s.ID] = next
	s.Version++
	return nil
}

func (t *tx) ArchiveMainOrder(_ context.Context, id uuid.UUID, at time.Time) error {
	if err := t.write(); err != nil {
		return err
	}
	o, ok := t.st.mains[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	if o.ArchivedAt != nil {
		return models.ErrOrderArchived
	}
	cp := o.Clone()
	cp.ArchivedAt = &at
	t.st.mains[id] = cp
	return nil
}

func (t *tx) MainOrdersByPublisher(_ context.Context, publisherID uuid.UUID) ([]*models.MainOrder, error) {
	var out []*models.MainOrder
	for i := len(t.st.mainSeq) - 1; i >= 0; i-- {
		o := t.st.mains[t.st.mainSeq[i]]
		if o.PublisherID == publisherID {
			out = append(out, t.withSubIDs(o))
		}
	}
	return out, nil
}

func (t *tx) OpenMainOrders(_ context.Context, limit int) ([]*models.MainOrder, error) {
	var out []*models.MainOrder
	for i := len(t.st.mainSeq) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		o := t.st.mains[t.st.mainSeq[i]]
		if o.ArchivedAt != nil {
			continue
		}
		for _, s := range t.subsOf(o.ID) {
			if s.Status == models.SubOrderPending {
				out = append(out, t.withSubIDs(o))
				break
			}
		}
	}
	return out, nil
}

func (t *tx) SubOrdersByCommenter(_ context.Context, commenterID uuid.UUID) ([]*models.SubOrder, error) {
	var out []*models.SubOrder
	for _, s := range t.st.subs {
		if s.HeldBy(commenterID) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ClaimedAt != nil && b.ClaimedAt != nil && !a.ClaimedAt.Equal(*b.ClaimedAt) {
			return a.ClaimedAt.After(*b.ClaimedAt)
		}
		if a.MainOrderID != b.MainOrderID {
			return a.MainOrderID.String() < b.MainOrderID.String()
		}
		return a.Seq < b.Seq
	})
	return cloneSubs(out), nil
}

func (t *tx) SubOrdersAwaitingReview(_ context.Context, publisherID uuid.UUID) ([]*models.SubOrder, error) {
	var out []*models.SubOrder
	for _, s := range t.st.subs {
		if s.Status != models.SubOrderPendingReview {
			continue
		}
		if o := t.st.mains[s.MainOrderID]; o != nil && o.PublisherID == publisherID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(*out[j].SubmittedAt) })
	return cloneSubs(out), nil
}

func (t *tx) ExpiredClaims(_ context.Context, cutoff time.Time, limit int) ([]*models.SubOrder, error) {
	var out []*models.SubOrder
	for _, s := range t.st.subs {
		if s.Status == models.SubOrderProcessing && s.SubmittedAt == nil && s.RejectCount == 0 &&
			s.ClaimedAt != nil && s.ClaimedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(*out[j].ClaimedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return cloneSubs(out), nil
}

func cloneSubs(in []*models.SubOrder) []*models.SubOrder {
	out := make([]*models.SubOrder, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// --- earnings ---

func (t *tx) CreateEarning(_ context.Context, r *models.EarningsRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	key := earningKey{subOrderID: r.SourceSubOrderID, kind: r.Kind}
	if _, dup := t.st.earningKeys[key]; dup {
		return models.ErrDuplicateCredit
	}
	t.st.earningKeys[key] = struct{}{}
	t.st.earnings = append(t.st.earnings, cloneEarning(r))
	return nil
}

func (t *tx) EarningsByCommenter(_ context.Context, commenterID uuid.UUID, kind models.EarningKind) ([]*models.EarningsRecord, error) {
	var out []*models.EarningsRecord
	for i := len(t.st.earnings) - 1; i >= 0; i-- {
		r := t.st.earnings[i]
		if r.CommenterID == commenterID && (kind == "" || r.Kind == kind) {
			out = append(out, cloneEarning(r))
		}
	}
	return out, nil
}

func (t *tx) EarningsBySubOrder(_ context.Context, subOrderID uuid.UUID) ([]*models.EarningsRecord, error) {
	var out []*models.EarningsRecord
	for _, r := range t.st.earnings {
		if r.SourceSubOrderID == subOrderID {
			out = append(out, cloneEarning(r))
		}
	}
	return out, nil
}

func cloneEarning(r *models.EarningsRecord) *models.EarningsRecord {
	cp := *r
	if r.Commission != nil {
		c := *r.Commission
		cp.Commission = &c
	}
	return &cp
}

// --- withdrawals ---

func (t *tx) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.withdrawals[w.ID] = cloneWithdrawal(w)
	t.st.withdrawSeq = append(t.st.withdrawSeq, w.ID)
	return nil
}

func (t *tx) LockWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return t.Withdrawal(ctx, id)
}

func (t *tx) Withdrawal(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, models.ErrWithdrawalNotFound
	}
	return cloneWithdrawal(w), nil
}

func (t *tx) UpdateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return models.ErrWithdrawalNotFound
	}
	t.st.withdrawals[w.ID] = cloneWithdrawal(w)
	return nil
}

func (t *tx) WithdrawalsByCommenter(_ context.Context, commenterID uuid.UUID) ([]*models.WithdrawalRequest, error) {
	var out []*models.WithdrawalRequest
	for i := len(t.st.withdrawSeq) - 1; i >= 0; i-- {
		w := t.st.withdrawals[t.st.withdrawSeq[i]]
		if w.CommenterID == commenterID {
			out = append(out, cloneWithdrawal(w))
		}
	}
	return out, nil
}

func (t *tx) WithdrawalsByStatus(_ context.Context, status models.WithdrawalStatus) ([]*models.WithdrawalRequest, error) {
	var out []*models.WithdrawalRequest
	for _, id := range t.st.withdrawSeq {
		if w := t.st.withdrawals[id]; w.Status == status {
			out = append(out, cloneWithdrawal(w))
		}
	}
	return out, nil
}

func cloneWithdrawal(w *models.WithdrawalRequest) *models.WithdrawalRequest {
	cp := *w
	if w.ProcessedAt != nil {
		at := *w.ProcessedAt
		cp.ProcessedAt = &at
	}
	return &cp
}

// --- accounts ---

func (t *tx) LockAccount(ctx context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	if err := t.write(); err != nil {
		return nil, err
	}
	return t.Account(ctx, commenterID)
}

func (t *tx) Account(_ context.Context, commenterID uuid.UUID) (*models.CommenterAccount, error) {
	if a, ok := t.st.accounts[commenterID]; ok {
		cp := *a
		return &cp, nil
	}
	return &models.CommenterAccount{CommenterID: commenterID}, nil
}

func (t *tx) SaveAccount(_ context.Context, a *models.CommenterAccount) error {
	if err := t.write(); err != nil {
		return err
	}
	if a.Available().IsNegative() {
		return errors.New("memstore: account balance would go negative")
	}
	cp := *a
	t.st.accounts[a.CommenterID] = &cp
	return nil
}
