package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/memberbridge/internal/credentials"
	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testHasher — bcrypt с минимальным cost для быстрых тестов.
func testHasher() *credentials.BcryptHasher {
	return credentials.NewBcryptHasher(4)
}

// --- fakeRosterRepo ---

type fakeRosterRepo struct {
	mu      sync.Mutex
	records map[string]*model.RosterRecord
	err     error
}

func newFakeRosterRepo(records ...*model.RosterRecord) *fakeRosterRepo {
	r := &fakeRosterRepo{records: make(map[string]*model.RosterRecord)}
	for _, rec := range records {
		r.records[rec.NationalID] = rec
	}
	return r
}

func (r *fakeRosterRepo) GetByNationalID(_ context.Context, nationalID string) (*model.RosterRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.records[nationalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRosterRepo) Exists(ctx context.Context, nationalID string) (bool, error) {
	_, err := r.GetByNationalID(ctx, nationalID)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// BulkUpsert сравнивает записи так же, как IS DISTINCT FROM в SQL.
func (r *fakeRosterRepo) BulkUpsert(_ context.Context, records []*model.RosterRecord) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, 0, r.err
	}

	added, updated := 0, 0
	now := time.Now()
	for _, rec := range records {
		cp := *rec
		existing, ok := r.records[rec.NationalID]
		switch {
		case !ok:
			cp.CreatedAt, cp.UpdatedAt = now, now
			r.records[rec.NationalID] = &cp
			added++
		case !sameRosterFields(existing, &cp):
			cp.CreatedAt, cp.UpdatedAt = existing.CreatedAt, now
			r.records[rec.NationalID] = &cp
			updated++
		}
	}
	return added, updated, nil
}

func (r *fakeRosterRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

func sameRosterFields(a, b *model.RosterRecord) bool {
	return a.ExternalID == b.ExternalID && a.FullName == b.FullName && a.Barcode == b.Barcode &&
		fmt.Sprint(deref(a.Balance)) == fmt.Sprint(deref(b.Balance)) &&
		fmt.Sprint(deref(a.RiskLevel)) == fmt.Sprint(deref(b.RiskLevel)) &&
		fmt.Sprint(deref(a.LastUnpaidPeriod)) == fmt.Sprint(deref(b.LastUnpaidPeriod)) &&
		fmt.Sprint(deref(a.FullAccess)) == fmt.Sprint(deref(b.FullAccess)) &&
		a.ControlFlags.Equal(b.ControlFlags) &&
		string(a.RawSnapshot) == string(b.RawSnapshot)
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// --- fakeAccountRepo ---

// fakeAccountRepo соблюдает UNIQUE(national_id) и UNIQUE(lower(email)).
// staleReads первых GetByNationalID возвращают ErrNotFound,
// имитируя чтение до коммита параллельного входа.
type fakeAccountRepo struct {
	mu         sync.Mutex
	byID       map[string]*model.Account
	staleReads int
	creates    int
	updates    int
	updateErr  error
}

func newFakeAccountRepo(accounts ...*model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{byID: make(map[string]*model.Account)}
	for _, a := range accounts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		r.byID[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.NationalID == a.NationalID {
			return fmt.Errorf("%w: номер документа уже зарегистрирован", repository.ErrConflict)
		}
		if a.Email != "" && strings.EqualFold(existing.Email, a.Email) {
			return fmt.Errorf("%w: email уже зарегистрирован", repository.ErrConflict)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	cp := *a
	r.byID[a.ID] = &cp
	r.creates++
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) GetByNationalID(_ context.Context, nationalID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleReads > 0 {
		r.staleReads--
		return nil, repository.ErrNotFound
	}
	for _, a := range r.byID {
		if a.NationalID == nationalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) Update(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	existing, ok := r.byID[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *a
	cp.CredentialHash = existing.CredentialHash
	r.byID[a.ID] = &cp
	r.updates++
	return nil
}

func (r *fakeAccountRepo) UpdateCredential(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.CredentialHash = hash
	return nil
}

func (r *fakeAccountRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// --- fakeSyncStateRepo ---

type fakeSyncStateRepo struct {
	mu    sync.Mutex
	state model.SyncState
}

func (r *fakeSyncStateRepo) Get(context.Context) (*model.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.state
	return &cp, nil
}

func (r *fakeSyncStateRepo) UpdateRosterSync(_ context.Context, t time.Time, fetched, upserted int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.LastRosterSyncAt = &t
	r.state.LastRosterSyncFetched = fetched
	r.state.LastRosterSyncUpserted = upserted
	return nil
}

// --- fakeDirectory ---

type fakeDirectory struct {
	mu      sync.Mutex
	members map[string]*model.DirectoryMember
	photos  map[string][]byte
	err     error
	roster  []json.RawMessage
	calls   int
}

func (d *fakeDirectory) FetchMember(_ context.Context, nationalID string) (*model.DirectoryMember, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	m, ok := d.members[nationalID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (d *fakeDirectory) FetchPhoto(_ context.Context, externalID string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.photos[externalID], nil
}

func (d *fakeDirectory) FetchFullRoster(context.Context) ([]json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.roster, nil
}

// --- fakeAvatarStore ---

type fakeAvatarStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *fakeAvatarStore) Save(_ context.Context, externalID string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[externalID] = data
	return "storage/socios/" + externalID + ".jpg", nil
}
