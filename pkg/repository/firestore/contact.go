package firestore

import (
	"context"
	"slices"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	tenantsCollection  = "tenants"
	contactsCollection = "contacts"
)

type excerptDoc struct {
	MessageID string    `firestore:"message_id"`
	Text      string    `firestore:"text"`
	SentAt    time.Time `firestore:"sent_at"`
}

type enrichLockDoc struct {
	Owner     string    `firestore:"owner"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// contactDoc is the Firestore document representation of model.Contact,
// stored at tenants/{tenant}/contacts/{counterpart}
type contactDoc struct {
	TenantID       string         `firestore:"tenant_id"`
	CounterpartID  string         `firestore:"counterpart_id"`
	DisplayName    string         `firestore:"display_name"`
	Handle         string         `firestore:"handle"`
	Bio            string         `firestore:"bio"`
	Company        *string        `firestore:"company"`
	Role           *string        `firestore:"role"`
	Topics         []string       `firestore:"topics"`
	Excerpt        []excerptDoc   `firestore:"excerpt"`
	Notes          string         `firestore:"notes"`
	EventTag       string         `firestore:"event_tag"`
	FirstSeen      time.Time      `firestore:"first_seen"`
	LastContact    time.Time      `firestore:"last_contact"`
	Status         string         `firestore:"status"`
	Synced         bool           `firestore:"synced"`
	RowRef         string         `firestore:"row_ref"`
	SyncedAt       *time.Time     `firestore:"synced_at"`
	LastError      string         `firestore:"last_error"`
	EnrichAttempts int            `firestore:"enrich_attempts"`
	EnrichLock     *enrichLockDoc `firestore:"enrich_lock"`
	Revision       int64          `firestore:"revision"`
	CreatedAt      time.Time      `firestore:"created_at"`
	UpdatedAt      time.Time      `firestore:"updated_at"`
}

func toContactDoc(c *model.Contact) *contactDoc {
	doc := &contactDoc{
		TenantID:       c.TenantID.String(),
		CounterpartID:  c.CounterpartID.String(),
		DisplayName:    c.DisplayName,
		Handle:         c.Handle,
		Bio:            c.Bio,
		Company:        c.Company,
		Role:           c.Role,
		Topics:         c.Topics,
		Notes:          c.Notes,
		EventTag:       c.EventTag,
		FirstSeen:      c.FirstSeen,
		LastContact:    c.LastContact,
		Status:         c.Status.String(),
		Synced:         c.Synced,
		RowRef:         c.RowRef,
		SyncedAt:       c.SyncedAt,
		LastError:      c.LastError,
		EnrichAttempts: c.EnrichAttempts,
		Revision:       c.Revision,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for _, m := range c.Excerpt {
		doc.Excerpt = append(doc.Excerpt, excerptDoc(m))
	}
	if c.EnrichLock != nil {
		doc.EnrichLock = &enrichLockDoc{Owner: c.EnrichLock.Owner, ExpiresAt: c.EnrichLock.ExpiresAt}
	}
	return doc
}

func fromContactDoc(d *contactDoc) *model.Contact {
	c := &model.Contact{
		TenantID:       types.TenantID(d.TenantID),
		CounterpartID:  types.CounterpartID(d.CounterpartID),
		DisplayName:    d.DisplayName,
		Handle:         d.Handle,
		Bio:            d.Bio,
		Company:        d.Company,
		Role:           d.Role,
		Topics:         d.Topics,
		Notes:          d.Notes,
		EventTag:       d.EventTag,
		FirstSeen:      d.FirstSeen,
		LastContact:    d.LastContact,
		Status:         types.ContactStatus(d.Status),
		Synced:         d.Synced,
		RowRef:         d.RowRef,
		SyncedAt:       d.SyncedAt,
		LastError:      d.LastError,
		EnrichAttempts: d.EnrichAttempts,
		Revision:       d.Revision,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, m := range d.Excerpt {
		c.Excerpt = append(c.Excerpt, model.ExcerptMessage(m))
	}
	if d.EnrichLock != nil {
		c.EnrichLock = &model.EnrichLock{Owner: d.EnrichLock.Owner, ExpiresAt: d.EnrichLock.ExpiresAt}
	}
	return c
}

type contactRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.ContactRepository = &contactRepository{}

func newContactRepository(client *firestore.Client) *contactRepository {
	return &contactRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *contactRepository) tenantsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_" + tenantsCollection
	}
	return tenantsCollection
}

// contactsCollection returns the subcollection path:
// tenants/{tenantID}/contacts
func (r *contactRepository) contactsCollection(tenantID types.TenantID) *firestore.CollectionRef {
	return r.client.Collection(r.tenantsCollection()).Doc(tenantID.String()).Collection(contactsCollection)
}

func (r *contactRepository) contactDoc(tenantID types.TenantID, counterpartID types.CounterpartID) *firestore.DocumentRef {
	return r.contactsCollection(tenantID).Doc(counterpartID.String())
}

func (r *contactRepository) Exists(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (bool, error) {
	_, err := r.contactDoc(tenantID, counterpartID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to check contact",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}
	return true, nil
}

func (r *contactRepository) Insert(ctx context.Context, contact *model.Contact) error {
	now := time.Now().UTC()
	doc := toContactDoc(contact)
	doc.Revision = 1
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	// Create fails with AlreadyExists when the document is present, which makes
	// the existence check and the insert a single atomic operation.
	if _, err := r.contactDoc(contact.TenantID, contact.CounterpartID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(ErrAlreadyExists, "contact already exists",
				goerr.V("tenant_id", contact.TenantID),
				goerr.V("counterpart_id", contact.CounterpartID))
		}
		return goerr.Wrap(err, "failed to insert contact",
			goerr.V("tenant_id", contact.TenantID),
			goerr.V("counterpart_id", contact.CounterpartID))
	}

	contact.Revision = doc.Revision
	return nil
}

func (r *contactRepository) Get(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error) {
	snap, err := r.contactDoc(tenantID, counterpartID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "contact not found",
				goerr.V("tenant_id", tenantID),
				goerr.V("counterpart_id", counterpartID))
		}
		return nil, goerr.Wrap(err, "failed to get contact",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	var d contactDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode contact",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	return fromContactDoc(&d), nil
}

func (r *contactRepository) Update(ctx context.Context, contact *model.Contact) error {
	updated, err := r.Patch(ctx, contact.TenantID, contact.CounterpartID, func(c *model.Contact) error {
		*c = *contact
		return nil
	})
	if err != nil {
		return err
	}
	contact.Revision = updated.Revision
	return nil
}

func (r *contactRepository) Patch(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, fn interfaces.PatchFunc) (*model.Contact, error) {
	docRef := r.contactDoc(tenantID, counterpartID)

	var result *model.Contact
	var fnErr error
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "contact not found",
					goerr.V("tenant_id", tenantID),
					goerr.V("counterpart_id", counterpartID))
			}
			return goerr.Wrap(err, "failed to get contact in transaction")
		}

		var d contactDoc
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to decode contact")
		}
		existing := fromContactDoc(&d)

		patched := fromContactDoc(&d)
		if err := fn(patched); err != nil {
			fnErr = err
			return err
		}

		patched.TenantID = existing.TenantID
		patched.CounterpartID = existing.CounterpartID
		patched.CreatedAt = existing.CreatedAt
		patched.Revision = existing.Revision + 1
		patched.UpdatedAt = time.Now().UTC()

		result = patched
		return tx.Set(docRef, toContactDoc(patched))
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to patch contact",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	return result, nil
}

func (r *contactRepository) collect(iter *firestore.DocumentIterator, tenantID types.TenantID) ([]*model.Contact, error) {
	defer iter.Stop()

	contacts := []*model.Contact{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate contacts", goerr.V("tenant_id", tenantID))
		}

		var d contactDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode contact",
				goerr.V("tenant_id", tenantID),
				goerr.V("doc_id", snap.Ref.ID))
		}
		contacts = append(contacts, fromContactDoc(&d))
	}

	return contacts, nil
}

func sortContacts(contacts []*model.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].FirstSeen.Equal(contacts[j].FirstSeen) {
			return contacts[i].FirstSeen.Before(contacts[j].FirstSeen)
		}
		return contacts[i].CounterpartID < contacts[j].CounterpartID
	})
}

func (r *contactRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error) {
	contacts, err := r.collect(r.contactsCollection(tenantID).Documents(ctx), tenantID)
	if err != nil {
		return nil, err
	}
	sortContacts(contacts)
	return contacts, nil
}

func (r *contactRepository) ListUnsynced(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error) {
	iter := r.contactsCollection(tenantID).
		Where("synced", "==", false).
		OrderBy("first_seen", firestore.Asc).
		Documents(ctx)

	contacts, err := r.collect(iter, tenantID)
	if err != nil {
		return nil, err
	}

	result := make([]*model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Status.IsEnrichmentAttempted() {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *contactRepository) ListByStatus(ctx context.Context, tenantID types.TenantID, statuses ...types.ContactStatus) ([]*model.Contact, error) {
	if len(statuses) == 0 {
		return []*model.Contact{}, nil
	}

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if !slices.Contains(values, s.String()) {
			values = append(values, s.String())
		}
	}

	iter := r.contactsCollection(tenantID).Where("status", "in", values).Documents(ctx)
	contacts, err := r.collect(iter, tenantID)
	if err != nil {
		return nil, err
	}
	sortContacts(contacts)
	return contacts, nil
}

func (r *contactRepository) ListSince(ctx context.Context, tenantID types.TenantID, since time.Time) ([]*model.Contact, error) {
	iter := r.contactsCollection(tenantID).
		Where("first_seen", ">=", since).
		OrderBy("first_seen", firestore.Asc).
		Documents(ctx)

	return r.collect(iter, tenantID)
}

func (r *contactRepository) Delete(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error {
	docRef := r.contactDoc(tenantID, counterpartID)

	// Exists precondition turns a missing document into NotFound
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "contact not found",
				goerr.V("tenant_id", tenantID),
				goerr.V("counterpart_id", counterpartID))
		}
		return goerr.Wrap(err, "failed to delete contact",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	return nil
}
