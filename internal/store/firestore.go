package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"verax/internal/invoice"
	"verax/internal/logger"
	"verax/pkg/models"
)

// FirebaseConfig selects the Firebase project and the credentials to reach it.
type FirebaseConfig struct {
	ProjectID       string
	StorageBucket   string
	CredentialsFile string
	CredentialsJSON string
}

// NewFirebaseApp initializes the Firebase app that yields both the Firestore client and the
// receipt storage bucket.
func NewFirebaseApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	const op = "NewFirebaseApp"

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to initialize firebase app: %w", op, err)
	}
	return app, nil
}

// Firestore implements Store on Cloud Firestore.
type Firestore struct {
	client *firestore.Client
	log    zerolog.Logger
}

// NewFirestore opens the Firestore client of app.
func NewFirestore(ctx context.Context, app *firebase.App) (*Firestore, error) {
	const op = "NewFirestore"

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create firestore client: %w", op, err)
	}
	return NewFirestoreFromClient(client), nil
}

// NewFirestoreFromClient wraps an existing client.
func NewFirestoreFromClient(client *firestore.Client) *Firestore {
	return &Firestore{client: client, log: logger.WithComponent("store")}
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func (s *Firestore) invoiceRef(id string) *firestore.DocumentRef {
	return s.client.Collection(InvoicesCollection).Doc(id)
}

func (s *Firestore) mirrorItems(uid string) *firestore.CollectionRef {
	return s.client.Collection(AnalystInvoicesCollection).Doc(uid).Collection(MirrorItemsCollection)
}

func (s *Firestore) requestRef(id string) *firestore.DocumentRef {
	return s.client.Collection(PayoutRequestsCollection).Doc(id)
}

func (s *Firestore) GetInvoice(ctx context.Context, id string) (models.Invoice, error) {
	const op = "GetInvoice"

	snap, err := s.invoiceRef(id).Get(ctx)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("%s: invoice %s: %w", op, id, mapError(err))
	}
	return invoice.Canonical(id, snap.Data()), nil
}

func (s *Firestore) invoiceQuery(filter InvoiceFilter) firestore.Query {
	q := s.client.Collection(InvoicesCollection).Query
	if filter.AnalystUID != "" {
		q = s.mirrorItems(filter.AnalystUID).Query
	}
	if filter.PaymentStatus != "" {
		q = q.Where(invoice.FieldPaymentStatus, "==", filter.PaymentStatus)
	}
	if filter.CollectionStatus != "" {
		q = q.Where(invoice.FieldCollectionStatus, "==", filter.CollectionStatus)
	}
	if filter.LinkedRequestID != "" {
		q = q.Where(invoice.FieldLinkedRequest, "==", filter.LinkedRequestID)
	}
	return q
}

func (s *Firestore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	const op = "ListInvoices"

	docs, err := s.invoiceQuery(filter).Documents(ctx).GetAll()
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("Invoice query failed")
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}

	out := make([]models.Invoice, 0, len(docs))
	for _, doc := range docs {
		// issuer is matched case-insensitively, which Firestore cannot express
		inv := invoice.Canonical(doc.Ref.ID, doc.Data())
		if filter.Matches(inv) {
			out = append(out, inv)
		}
	}
	sortInvoices(out)
	return out, nil
}

func (s *Firestore) ScanRawInvoices(ctx context.Context, fn func(id string, raw map[string]interface{}) error) error {
	const op = "ScanRawInvoices"

	it := s.client.Collection(InvoicesCollection).Documents(ctx)
	defer it.Stop()
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, mapError(err))
		}
		if err := fn(doc.Ref.ID, doc.Data()); err != nil {
			return err
		}
	}
}

func (s *Firestore) CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	const op = "CreateInvoice"

	ref := s.client.Collection(InvoicesCollection).NewDoc()
	if inv.ID != "" {
		ref = s.invoiceRef(inv.ID)
	}
	fields := newInvoiceFields(inv, time.Now())
	created := invoice.Canonical(ref.ID, fields)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, fields); err != nil {
			return err
		}
		if created.AnalystUID != "" {
			return tx.Set(s.mirrorItems(created.AnalystUID).Doc(ref.ID), fields)
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Str("invoice_id", ref.ID).Msg("Failed to create invoice")
		return models.Invoice{}, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return created, nil
}

func (s *Firestore) UpdateInvoiceFields(ctx context.Context, id string, expectedVersion int64, patch Patch) (models.Invoice, error) {
	const op = "UpdateInvoiceFields"

	var updated models.Invoice
	err := s.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetInvoice(id); err != nil {
			return err
		}
		if err := tx.UpdateInvoice(id, expectedVersion, patch); err != nil {
			return err
		}
		updated = invoice.Canonical(id, tx.(*firestoreTx).docs[id])
		return nil
	})
	if err != nil {
		return models.Invoice{}, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

func (s *Firestore) DeleteInvoice(ctx context.Context, id string) error {
	const op = "DeleteInvoice"

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.invoiceRef(id))
		if err != nil {
			return err
		}
		inv := invoice.Canonical(id, snap.Data())
		if err := tx.Delete(s.invoiceRef(id)); err != nil {
			return err
		}
		if inv.AnalystUID != "" {
			return tx.Delete(s.mirrorItems(inv.AnalystUID).Doc(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: invoice %s: %w", op, id, mapError(err))
	}
	s.log.Warn().Str("invoice_id", id).Msg("Invoice deleted")
	return nil
}

func (s *Firestore) GetPayoutRequest(ctx context.Context, id string) (models.PayoutRequest, error) {
	const op = "GetPayoutRequest"

	snap, err := s.requestRef(id).Get(ctx)
	if err != nil {
		return models.PayoutRequest{}, fmt.Errorf("%s: payout request %s: %w", op, id, mapError(err))
	}
	return decodePayout(snap)
}

func (s *Firestore) ListPayoutRequests(ctx context.Context, filter PayoutFilter) ([]models.PayoutRequest, error) {
	const op = "ListPayoutRequests"

	q := s.client.Collection(PayoutRequestsCollection).Query
	if filter.AnalystUID != "" {
		q = q.Where("analystUid", "==", filter.AnalystUID)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}

	out := make([]models.PayoutRequest, 0, len(docs))
	for _, doc := range docs {
		req, err := decodePayout(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, req)
	}
	sortPayouts(out)
	return out, nil
}

func decodePayout(snap *firestore.DocumentSnapshot) (models.PayoutRequest, error) {
	var req models.PayoutRequest
	if err := snap.DataTo(&req); err != nil {
		return models.PayoutRequest{}, fmt.Errorf("decode payout request %s: %w", snap.Ref.ID, err)
	}
	req.ID = snap.Ref.ID
	return req, nil
}

type analystRulesDoc struct {
	Rules []models.AnalystRule `firestore:"rules"`
}

type insurerTermsDoc struct {
	Terms []models.InsurerTerm `firestore:"terms"`
}

func (s *Firestore) AnalystRules(ctx context.Context) ([]models.AnalystRule, error) {
	var doc analystRulesDoc
	if err := s.readSettings(ctx, AnalystRulesDoc, &doc); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

func (s *Firestore) SaveAnalystRules(ctx context.Context, rules []models.AnalystRule) error {
	return s.writeSettings(ctx, AnalystRulesDoc, analystRulesDoc{Rules: rules})
}

func (s *Firestore) InsurerTerms(ctx context.Context) ([]models.InsurerTerm, error) {
	var doc insurerTermsDoc
	if err := s.readSettings(ctx, InsurerTermsDoc, &doc); err != nil {
		return nil, err
	}
	return doc.Terms, nil
}

func (s *Firestore) SaveInsurerTerms(ctx context.Context, terms []models.InsurerTerm) error {
	return s.writeSettings(ctx, InsurerTermsDoc, insurerTermsDoc{Terms: terms})
}

// readSettings leaves into untouched when the settings document does not exist yet.
func (s *Firestore) readSettings(ctx context.Context, name string, into interface{}) error {
	const op = "readSettings"

	snap, err := s.client.Collection(SettingsCollection).Doc(name).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, mapError(err))
	}
	if err := snap.DataTo(into); err != nil {
		return fmt.Errorf("%s: decode %s: %w", op, name, err)
	}
	return nil
}

func (s *Firestore) writeSettings(ctx context.Context, name string, data interface{}) error {
	const op = "writeSettings"

	if _, err := s.client.Collection(SettingsCollection).Doc(name).Set(ctx, data); err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, mapError(err))
	}
	return nil
}

// RunTx runs fn in a Firestore transaction. Firestore may call fn again on contention, so fn
// must not have side effects outside tx.
func (s *Firestore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var fnErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		fnErr = fn(ctx, &firestoreTx{
			s:    s,
			tx:   ftx,
			now:  time.Now(),
			docs: make(map[string]map[string]interface{}),
		})
		return fnErr
	})
	if err != nil {
		if isCommitFailure(err, fnErr) {
			s.log.Error().Err(err).Str("op", "RunTx").Msg("Transaction failed")
		}
		return mapError(err)
	}
	return nil
}

// isCommitFailure reports whether err came from Firestore itself rather than being the
// callback's own outcome, which the caller reports.
func isCommitFailure(err, fnErr error) bool {
	if fnErr != nil && errors.Is(err, fnErr) {
		return false
	}
	code := status.Code(err)
	return code != codes.Aborted && code != codes.NotFound &&
		!errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound)
}

type firestoreTx struct {
	s   *Firestore
	tx  *firestore.Transaction
	now time.Time
	// documents read in this attempt, updated in place as writes are staged
	docs map[string]map[string]interface{}
}

func (t *firestoreTx) GetInvoice(id string) (models.Invoice, error) {
	if raw, ok := t.docs[id]; ok {
		return invoice.Canonical(id, raw), nil
	}
	snap, err := t.tx.Get(t.s.invoiceRef(id))
	if err != nil {
		return models.Invoice{}, fmt.Errorf("invoice %s: %w", id, mapError(err))
	}
	raw := snap.Data()
	t.docs[id] = raw
	return invoice.Canonical(id, raw), nil
}

func (t *firestoreTx) GetPayoutRequest(id string) (models.PayoutRequest, error) {
	snap, err := t.tx.Get(t.s.requestRef(id))
	if err != nil {
		return models.PayoutRequest{}, fmt.Errorf("payout request %s: %w", id, mapError(err))
	}
	return decodePayout(snap)
}

func (t *firestoreTx) CreatePayoutRequest(req models.PayoutRequest) error {
	if req.ID == "" {
		return errors.New("payout request id is required")
	}
	req.UpdatedAt = t.now
	return t.tx.Create(t.s.requestRef(req.ID), req)
}

func (t *firestoreTx) UpdatePayoutRequest(req models.PayoutRequest) error {
	req.UpdatedAt = t.now
	return t.tx.Set(t.s.requestRef(req.ID), req)
}

func (t *firestoreTx) UpdateInvoice(id string, expectedVersion int64, patch Patch) error {
	current, ok := t.docs[id]
	if !ok {
		return fmt.Errorf("invoice %s: %w", id, ErrNotRead)
	}
	before := invoice.Canonical(id, current)
	if err := checkVersion(before, expectedVersion); err != nil {
		return fmt.Errorf("invoice %s: %w", id, err)
	}

	merged := applyPatch(current, patch, t.now)
	updates := []firestore.Update{
		{Path: invoice.FieldVersion, Value: merged[invoice.FieldVersion]},
		{Path: invoice.FieldUpdatedAt, Value: t.now},
	}
	for field, v := range expandPatch(patch) {
		if v == Remove {
			updates = append(updates, firestore.Update{Path: field, Value: firestore.Delete})
			continue
		}
		updates = append(updates, firestore.Update{Path: field, Value: v})
	}
	if err := t.tx.Update(t.s.invoiceRef(id), updates); err != nil {
		return err
	}

	// the mirror is rebuilt from the primary's post-state
	after := invoice.Canonical(id, merged)
	if before.AnalystUID != "" && before.AnalystUID != after.AnalystUID {
		if err := t.tx.Delete(t.s.mirrorItems(before.AnalystUID).Doc(id)); err != nil {
			return err
		}
	}
	if after.AnalystUID != "" {
		if err := t.tx.Set(t.s.mirrorItems(after.AnalystUID).Doc(id), merged); err != nil {
			return err
		}
	}
	t.docs[id] = merged
	return nil
}

func (s *Firestore) WatchInvoices(ctx context.Context, filter InvoiceFilter, handler func(InvoiceChange)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.invoiceQuery(filter).Snapshots(ctx)
	sub := &firestoreSubscription{cancel: cancel, it: it}

	go func() {
		defer sub.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && ctx.Err() == nil {
					s.log.Error().Err(err).Str("op", "WatchInvoices").Msg("Invoice listener stopped")
				}
				return
			}
			for _, change := range snap.Changes {
				inv := invoice.Canonical(change.Doc.Ref.ID, change.Doc.Data())
				if !filter.Matches(inv) {
					continue
				}
				handler(InvoiceChange{Kind: changeKind(change.Kind), Invoice: inv})
			}
		}
	}()
	return sub, nil
}

type firestoreSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	it     *firestore.QuerySnapshotIterator
}

func (s *firestoreSubscription) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.it.Stop()
	})
}

func changeKind(k firestore.DocumentChangeKind) ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return ChangeAdded
	case firestore.DocumentRemoved:
		return ChangeRemoved
	default:
		return ChangeModified
	}
}

// mapError turns Firestore status codes into this package's sentinels.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.Aborted:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
