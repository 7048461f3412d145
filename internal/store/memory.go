package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"verax/internal/invoice"
	"verax/pkg/models"
)

// Memory is an in-process Store. Transactions are serialized and staged until commit.
type Memory struct {
	mu       sync.Mutex
	invoices map[string]map[string]interface{}
	// uid -> invoice id -> document
	mirrors  map[string]map[string]map[string]interface{}
	requests map[string]models.PayoutRequest
	rules    []models.AnalystRule
	terms    []models.InsurerTerm

	failNext error
	watchers map[int]*memoryWatch
	nextID   int
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		invoices: make(map[string]map[string]interface{}),
		mirrors:  make(map[string]map[string]map[string]interface{}),
		requests: make(map[string]models.PayoutRequest),
		watchers: make(map[int]*memoryWatch),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for updatedAt and createdAt.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// PutRawInvoice stores raw as the primary document id exactly as given, bypassing
// transactions. The mirror copy is written when raw resolves to an analyst uid.
func (m *Memory) PutRawInvoice(id string, raw map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[id] = copyDoc(raw)
	if uid := invoice.Canonical(id, raw).AnalystUID; uid != "" {
		m.putMirror(uid, id, raw)
	}
}

// RawInvoice returns the stored primary document.
func (m *Memory) RawInvoice(id string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.invoices[id]
	return copyDoc(raw), ok
}

// MirrorInvoice returns the analyst's mirror copy of an invoice.
func (m *Memory) MirrorInvoice(uid, id string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.mirrors[uid][id]
	return copyDoc(raw), ok
}

// FailNextCommit makes the next transaction commit fail with err and apply nothing.
func (m *Memory) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Watchers returns the number of live subscriptions.
func (m *Memory) Watchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Memory) GetInvoice(ctx context.Context, id string) (models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.invoices[id]
	if !ok {
		return models.Invoice{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return invoice.Canonical(id, raw), nil
}

func (m *Memory) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	source := m.invoices
	if filter.AnalystUID != "" {
		source = m.mirrors[filter.AnalystUID]
	}
	var out []models.Invoice
	for id, raw := range source {
		inv := invoice.Canonical(id, raw)
		if filter.Matches(inv) {
			out = append(out, inv)
		}
	}
	sortInvoices(out)
	return out, nil
}

func (m *Memory) ScanRawInvoices(ctx context.Context, fn func(id string, raw map[string]interface{}) error) error {
	m.mu.Lock()
	docs := make(map[string]map[string]interface{}, len(m.invoices))
	for id, raw := range m.invoices {
		docs[id] = copyDoc(raw)
	}
	m.mu.Unlock()

	for id, raw := range docs {
		if err := fn(id, raw); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	var created models.Invoice
	err := m.commit(func(tx *memoryTx) error {
		id := inv.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, exists := m.invoices[id]; exists {
			return fmt.Errorf("invoice %s already exists", id)
		}
		fields := newInvoiceFields(inv, tx.now)
		tx.stageInvoice(id, nil, fields)
		created = invoice.Canonical(id, fields)
		return nil
	})
	return created, err
}

func (m *Memory) UpdateInvoiceFields(ctx context.Context, id string, expectedVersion int64, patch Patch) (models.Invoice, error) {
	var updated models.Invoice
	err := m.commit(func(tx *memoryTx) error {
		if _, err := tx.GetInvoice(id); err != nil {
			return err
		}
		if err := tx.UpdateInvoice(id, expectedVersion, patch); err != nil {
			return err
		}
		updated = invoice.Canonical(id, tx.invoices[id])
		return nil
	})
	return updated, err
}

func (m *Memory) DeleteInvoice(ctx context.Context, id string) error {
	return m.commit(func(tx *memoryTx) error {
		raw, ok := m.invoices[id]
		if !ok {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		tx.stageInvoice(id, raw, nil)
		return nil
	})
}

func (m *Memory) GetPayoutRequest(ctx context.Context, id string) (models.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return models.PayoutRequest{}, fmt.Errorf("payout request %s: %w", id, ErrNotFound)
	}
	return clonePayout(req), nil
}

func (m *Memory) ListPayoutRequests(ctx context.Context, filter PayoutFilter) ([]models.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutRequest
	for _, req := range m.requests {
		if filter.Matches(req) {
			out = append(out, clonePayout(req))
		}
	}
	sortPayouts(out)
	return out, nil
}

func (m *Memory) AnalystRules(ctx context.Context) ([]models.AnalystRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AnalystRule(nil), m.rules...), nil
}

func (m *Memory) SaveAnalystRules(ctx context.Context, rules []models.AnalystRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]models.AnalystRule(nil), rules...)
	return nil
}

func (m *Memory) InsurerTerms(ctx context.Context) ([]models.InsurerTerm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.InsurerTerm(nil), m.terms...), nil
}

func (m *Memory) SaveInsurerTerms(ctx context.Context, terms []models.InsurerTerm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = append([]models.InsurerTerm(nil), terms...)
	return nil
}

func (m *Memory) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return m.commit(func(tx *memoryTx) error {
		return fn(ctx, tx)
	})
}

func (m *Memory) WatchInvoices(ctx context.Context, filter InvoiceFilter, handler func(InvoiceChange)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	w := &memoryWatch{filter: filter, handler: handler, done: make(chan struct{})}
	w.release = func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
	m.watchers[id] = w

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				w.Stop()
			case <-w.done:
			}
		}()
	}
	return w, nil
}

func (m *Memory) Close() error { return nil }

// commit runs fn under the store lock and applies its staged writes only if fn and the
// (possibly injected) commit both succeed. Watchers are notified after the lock is released.
func (m *Memory) commit(fn func(tx *memoryTx) error) error {
	m.mu.Lock()
	tx := &memoryTx{
		m:        m,
		now:      m.now(),
		invoices: make(map[string]map[string]interface{}),
		previous: make(map[string]map[string]interface{}),
		requests: make(map[string]models.PayoutRequest),
	}
	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.failNext; err != nil {
		m.failNext = nil
		m.mu.Unlock()
		return err
	}

	var changes []InvoiceChange
	for id, raw := range tx.invoices {
		prev, existed := m.invoices[id]
		if raw == nil {
			if existed {
				inv := invoice.Canonical(id, prev)
				m.removeMirror(inv.AnalystUID, id)
				delete(m.invoices, id)
				changes = append(changes, InvoiceChange{Kind: ChangeRemoved, Invoice: inv})
			}
			continue
		}
		m.invoices[id] = raw
		inv := invoice.Canonical(id, raw)
		if existed {
			if old := invoice.Canonical(id, prev); old.AnalystUID != inv.AnalystUID {
				m.removeMirror(old.AnalystUID, id)
			}
		}
		if inv.AnalystUID != "" {
			m.putMirror(inv.AnalystUID, id, raw)
		}
		kind := ChangeModified
		if !existed {
			kind = ChangeAdded
		}
		changes = append(changes, InvoiceChange{Kind: kind, Invoice: inv})
	}
	for id, req := range tx.requests {
		m.requests[id] = req
	}
	watchers := make([]*memoryWatch, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		for _, c := range changes {
			if w.filter.Matches(c.Invoice) {
				w.deliver(c)
			}
		}
	}
	return nil
}

func (m *Memory) putMirror(uid, id string, raw map[string]interface{}) {
	items, ok := m.mirrors[uid]
	if !ok {
		items = make(map[string]map[string]interface{})
		m.mirrors[uid] = items
	}
	items[id] = copyDoc(raw)
}

func (m *Memory) removeMirror(uid, id string) {
	if uid == "" {
		return
	}
	delete(m.mirrors[uid], id)
}

type memoryTx struct {
	m   *Memory
	now time.Time
	// staged post-state; nil means delete
	invoices map[string]map[string]interface{}
	previous map[string]map[string]interface{}
	requests map[string]models.PayoutRequest
}

func (tx *memoryTx) stageInvoice(id string, prev, next map[string]interface{}) {
	tx.previous[id] = prev
	tx.invoices[id] = next
}

func (tx *memoryTx) GetInvoice(id string) (models.Invoice, error) {
	if raw, ok := tx.invoices[id]; ok && raw != nil {
		return invoice.Canonical(id, raw), nil
	}
	raw, ok := tx.m.invoices[id]
	if !ok {
		return models.Invoice{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if _, seen := tx.previous[id]; !seen {
		tx.previous[id] = raw
	}
	return invoice.Canonical(id, raw), nil
}

func (tx *memoryTx) GetPayoutRequest(id string) (models.PayoutRequest, error) {
	if req, ok := tx.requests[id]; ok {
		return clonePayout(req), nil
	}
	req, ok := tx.m.requests[id]
	if !ok {
		return models.PayoutRequest{}, fmt.Errorf("payout request %s: %w", id, ErrNotFound)
	}
	return clonePayout(req), nil
}

func (tx *memoryTx) CreatePayoutRequest(req models.PayoutRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, exists := tx.m.requests[req.ID]; exists {
		return fmt.Errorf("payout request %s already exists", req.ID)
	}
	req.UpdatedAt = tx.now
	tx.requests[req.ID] = clonePayout(req)
	return nil
}

func (tx *memoryTx) UpdatePayoutRequest(req models.PayoutRequest) error {
	if _, ok := tx.m.requests[req.ID]; !ok {
		if _, staged := tx.requests[req.ID]; !staged {
			return fmt.Errorf("payout request %s: %w", req.ID, ErrNotFound)
		}
	}
	req.UpdatedAt = tx.now
	tx.requests[req.ID] = clonePayout(req)
	return nil
}

func (tx *memoryTx) UpdateInvoice(id string, expectedVersion int64, patch Patch) error {
	current, ok := tx.invoices[id]
	if !ok {
		current, ok = tx.previous[id]
	}
	if !ok || current == nil {
		return fmt.Errorf("invoice %s: %w", id, ErrNotRead)
	}
	if err := checkVersion(invoice.Canonical(id, current), expectedVersion); err != nil {
		return fmt.Errorf("invoice %s: %w", id, err)
	}
	tx.invoices[id] = applyPatch(current, patch, tx.now)
	return nil
}

type memoryWatch struct {
	filter  InvoiceFilter
	handler func(InvoiceChange)
	once    sync.Once
	release func()
	done    chan struct{}
	stopped atomic.Bool
}

func (w *memoryWatch) deliver(c InvoiceChange) {
	if !w.stopped.Load() {
		w.handler(c)
	}
}

func (w *memoryWatch) Stop() {
	w.once.Do(func() {
		w.stopped.Store(true)
		close(w.done)
		w.release()
	})
}

func copyDoc(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

func clonePayout(req models.PayoutRequest) models.PayoutRequest {
	req.InvoiceIDs = append([]string(nil), req.InvoiceIDs...)
	req.InvoiceSnapshot = append([]models.InvoiceSnapshot(nil), req.InvoiceSnapshot...)
	req.History = append([]models.HistoryEntry(nil), req.History...)
	if req.Receipt != nil {
		receipt := *req.Receipt
		req.Receipt = &receipt
	}
	return req
}
