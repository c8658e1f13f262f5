package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/memberbridge/internal/api/middleware"
	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/service"
	"github.com/bigkaa/memberbridge/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeResolver struct {
	result *service.LoginResult
	err    error
	gotID  string
	gotPwd string
}

func (f *fakeResolver) ResolveLogin(_ context.Context, nationalID, credential string) (*service.LoginResult, error) {
	f.gotID, f.gotPwd = nationalID, credential
	return f.result, f.err
}

type fakeAccounts struct {
	account     *model.Account
	registerErr error
	changeErr   error
	getErr      error

	registered *service.RegisterInput
	changedFor string
}

func (f *fakeAccounts) Register(_ context.Context, in service.RegisterInput) (*model.Account, error) {
	f.registered = &in
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.account, nil
}

func (f *fakeAccounts) ChangePassword(_ context.Context, accountID, _, _, _ string) error {
	f.changedFor = accountID
	return f.changeErr
}

func (f *fakeAccounts) Get(_ context.Context, _ string) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.account, nil
}

type fakeSessions struct {
	revoked   []string
	revokeErr error
}

func (f *fakeSessions) Issue(accountID, _ string) (string, time.Time, error) {
	return "token-" + accountID, time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC), nil
}

func (f *fakeSessions) Revoke(_ context.Context, claims *session.Claims) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, claims.ID)
	return nil
}

type fakePool struct {
	token *model.PoolToken
	err   error
}

func (f *fakePool) IssueToken(context.Context, *model.Account) (*model.PoolToken, error) {
	return f.token, f.err
}

type fakeRoster struct {
	result    *model.RosterSyncResult
	syncErr   error
	gotChunk  int
	status    *model.RosterStatus
	statusErr error
	record    *model.RosterRecord
	recordErr error
}

func (f *fakeRoster) SyncFullRoster(_ context.Context, batchSize int) (*model.RosterSyncResult, error) {
	f.gotChunk = batchSize
	return f.result, f.syncErr
}

func (f *fakeRoster) Status(context.Context) (*model.RosterStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeRoster) GetRecord(context.Context, string) (*model.RosterRecord, error) {
	return f.record, f.recordErr
}

// testDeps — набор фейков для APIHandler.
type testDeps struct {
	resolver *fakeResolver
	accounts *fakeAccounts
	sessions *fakeSessions
	pool     *fakePool
	roster   *fakeRoster
}

func newTestHandler() (*APIHandler, *testDeps) {
	deps := &testDeps{
		resolver: &fakeResolver{},
		accounts: &fakeAccounts{account: testAccount()},
		sessions: &fakeSessions{},
		pool:     &fakePool{},
		roster:   &fakeRoster{},
	}
	h := NewAPIHandler(NewHealthHandler(nil, nil), deps.resolver, deps.accounts,
		deps.sessions, deps.pool, deps.roster, testLogger())
	return h, deps
}

func testAccount() *model.Account {
	birth := time.Date(1990, 5, 4, 0, 0, 0, 0, time.UTC)
	return &model.Account{
		ID: "9b2f4c1e-8a3d-4f5b-9c6e-7d8a9b0c1d2e",
		AccountAttributes: model.AccountAttributes{
			NationalID:  "42462163",
			DisplayName: "Oliveto, Julieta",
			ExternalID:  "500",
			BirthDate:   &birth,
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testClaims() *session.Claims {
	return &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "9b2f4c1e-8a3d-4f5b-9c6e-7d8a9b0c1d2e",
			ID:      "jti-1",
		},
		NationalID: "42462163",
	}
}

// doRequest выполняет запрос к обработчику; claims != nil помещаются в контекст.
func doRequest(handler http.HandlerFunc, method, target string, body any, claims *session.Claims) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		req = req.WithContext(middleware.WithSession(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// errorCode извлекает код ошибки из ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	return resp.Error.Code
}
