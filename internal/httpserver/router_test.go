package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docportal/internal/access"
	"docportal/internal/audit"
	"docportal/internal/handler"
	"docportal/internal/identity"
	"docportal/internal/model"
	"docportal/internal/repository/memory"
	"docportal/internal/service/auth"
	"docportal/internal/service/project"
	"docportal/internal/service/requirement"
	"docportal/internal/service/review"
	"docportal/internal/service/upload"
	"docportal/internal/storage"
	"docportal/pkg/config"
	"docportal/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	mu sync.Mutex
	n  map[string]int64
}

func (c *countingStore) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[key]++
	return c.n[key], nil
}

func (c *countingStore) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[key], nil
}

func (c *countingStore) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.n, key)
	return nil
}

type fakeReplayer struct{ replayed []int64 }

func (f *fakeReplayer) ReplayEvent(_ context.Context, id int64) error {
	f.replayed = append(f.replayed, id)
	return nil
}

func (f *fakeReplayer) ReplayFailedEvents(_ context.Context, limit int) (int, error) {
	return 0, nil
}

type testEnv struct {
	router   *Router
	db       *memory.DB
	resolver *identity.Resolver
	sink     *audit.MemorySink
	replayer *fakeReplayer
	admin    *model.User
	client   *model.User
	member   *model.User
	outsider *model.User
	project  *model.Project
	req      *model.DocumentRequirement
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := memory.New()
	log := zap.NewNop()
	e := &testEnv{
		db:       db,
		resolver: identity.NewResolver(config.JWTConfig{Secret: "test-secret", TokenTTL: time.Hour}),
		sink:     audit.NewMemorySink(),
		replayer: &fakeReplayer{},
		admin:    db.SeedUser("admin@example.com", "admin"),
		client:   db.SeedUser("client@example.com", "client"),
		member:   db.SeedUser("member@example.com", "consultant"),
		outsider: db.SeedUser("outsider@example.com", "consultant"),
	}
	e.project = db.SeedProject("river restoration", e.client.ID, e.member.ID)
	e.req = db.SeedRequirement(e.project.ID, "signed contract")

	ev := access.NewEvaluator(db.Users(), db.Projects(), log)
	counter := &countingStore{n: map[string]int64{}}
	h := Handlers{
		Auth: handler.NewAuthHandler(
			auth.NewService(db.Users(), e.resolver, ev, counter, 3, e.sink, log), log),
		Project: handler.NewProjectHandler(
			project.NewService(db.Users(), db.Projects(), ev, e.sink, log), log),
		Requirement: handler.NewRequirementHandler(
			requirement.NewService(db.Projects(), db.Requirements(), db.Files(), ev, e.sink, log), log),
		Upload: handler.NewUploadHandler(
			upload.NewService(db.Requirements(), db.Files(), ev, storage.NewMemoryPresigner(), e.sink, upload.DefaultOptions(), log), log),
		Review: handler.NewReviewHandler(
			review.NewService(db.Requirements(), ev, e.sink, log), log),
		Admin: handler.NewAdminHandler(e.replayer, log),
	}
	e.router = NewRouter(h, e.resolver, ev, nil)
	return e
}

func (e *testEnv) token(t *testing.T, u *model.User) string {
	t.Helper()
	tok, _, err := e.resolver.Issue(identity.Principal{ID: u.ID, Email: u.Email})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.Engine.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// submit 走完整的 init + complete
func (e *testEnv) submit(t *testing.T, token string, names ...string) upload.CompleteResult {
	t.Helper()
	files := make([]upload.FileDescriptor, len(names))
	for i, n := range names {
		files[i] = upload.FileDescriptor{Name: n, Size: 128}
	}
	w := e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/uploads/init", token, gin.H{"files": files})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	init := decode[upload.InitResult](t, w)

	items := make([]upload.UploadedItem, len(init.Placements))
	for i, p := range init.Placements {
		items[i] = upload.UploadedItem{StorageKey: p.StorageKey, OriginalName: p.FileName}
	}
	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/uploads/complete", token,
		gin.H{"version": init.Version, "items": items})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[upload.CompleteResult](t, w)
}

func (e *testEnv) getRequirement(t *testing.T, token string) model.RequirementWithFiles {
	t.Helper()
	w := e.do(t, http.MethodGet, "/document-requests/"+e.req.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[model.RequirementWithFiles](t, w)
}

func TestRouter_Health(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ReadyzReportsDependencyFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := newTestEnv(t)
	e.router = NewRouter(Handlers{
		Auth: &handler.AuthHandler{}, Project: &handler.ProjectHandler{},
		Requirement: &handler.RequirementHandler{}, Upload: &handler.UploadHandler{},
		Review: &handler.ReviewHandler{},
	}, e.resolver, nil, func(context.Context) error { return errors.New("db down") })

	w := e.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_RejectsMissingOrInvalidCredential(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/uploads/init", "not-a-jwt", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := identity.NewResolver(config.JWTConfig{Secret: "other", TokenTTL: time.Hour})
	forged, _, err := other.Issue(identity.Principal{ID: e.admin.ID})
	require.NoError(t, err)
	w = e.do(t, http.MethodGet, "/projects", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_TraceHeaderEchoed(t *testing.T) {
	e := newTestEnv(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Trace-ID", "abc123")
	w := httptest.NewRecorder()
	e.router.Engine.ServeHTTP(w, r)
	assert.Equal(t, "abc123", w.Header().Get("X-Trace-ID"))
}

func TestRouter_SubmissionReviewLifecycle(t *testing.T) {
	e := newTestEnv(t)
	clientTok := e.token(t, e.client)
	adminTok := e.token(t, e.admin)

	// A: 首次提交
	first := e.submit(t, clientTok, "contract.pdf")
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, model.StatusReview, first.Status)
	require.Len(t, first.Files, 1)
	assert.Equal(t, 1, first.Files[0].VersionNumber)

	// B: 驳回，备注写在最新文件上
	w := e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", adminTok,
		gin.H{"action": "reject", "note": "missing signature"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[review.Result](t, w)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.AnnotatedFile)
	require.NotNil(t, rejected.AnnotatedFile.Comment)
	assert.Equal(t, "missing signature", *rejected.AnnotatedFile.Comment)
	assert.Equal(t, first.Files[0].ID, rejected.AnnotatedFile.ID)

	// C: 重新提交两个文件
	second := e.submit(t, clientTok, "contract-signed.pdf", "annex.pdf")
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, model.StatusReview, second.Status)
	require.Len(t, second.Files, 2)
	for _, f := range second.Files {
		assert.Equal(t, 2, f.VersionNumber)
	}

	got := e.getRequirement(t, clientTok)
	assert.Equal(t, model.StatusReview, got.Status)
	assert.Len(t, got.Files, 3)

	// D: 批准，再次批准是 no-op
	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", adminTok, gin.H{"action": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusApproved, decode[review.Result](t, w).Status)

	audits := len(e.sink.Entries())
	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", adminTok, gin.H{"action": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusApproved, decode[review.Result](t, w).Status)
	assert.Len(t, e.sink.Entries(), audits)

	// 已批准的需求不再接受提交
	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/uploads/init", clientTok,
		gin.H{"files": []upload.FileDescriptor{{Name: "late.pdf", Size: 1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ReviewValidation(t *testing.T) {
	e := newTestEnv(t)
	adminTok := e.token(t, e.admin)
	e.submit(t, e.token(t, e.client), "contract.pdf")

	w := e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", adminTok, gin.H{"action": "reject", "note": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "reason")

	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", adminTok, gin.H{"action": "archive"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/document-requests/"+e.req.ID+"/review", e.token(t, e.client), gin.H{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, model.StatusReview, e.getRequirement(t, adminTok).Status)
}

func TestRouter_NonMemberForbiddenEverywhere(t *testing.T) {
	e := newTestEnv(t)
	res := e.submit(t, e.token(t, e.client), "contract.pdf")
	fileID := res.Files[0].ID
	tok := e.token(t, e.outsider)
	reqPath := "/document-requests/" + e.req.ID
	projPath := "/projects/" + e.project.ID

	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, projPath, nil},
		{http.MethodGet, projPath + "/members", nil},
		{http.MethodPost, projPath + "/members", gin.H{"consultant_id": e.outsider.ID}},
		{http.MethodDelete, projPath + "/members/" + e.member.ID, nil},
		{http.MethodGet, projPath + "/document-requests", nil},
		{http.MethodPost, projPath + "/document-requests", gin.H{"name": "bank statement"}},
		{http.MethodGet, reqPath, nil},
		{http.MethodPatch, reqPath, gin.H{"name": "renamed"}},
		{http.MethodDelete, reqPath, nil},
		{http.MethodPost, reqPath + "/uploads/init", gin.H{"files": []upload.FileDescriptor{{Name: "x.pdf", Size: 1}}}},
		{http.MethodPost, reqPath + "/uploads/complete", gin.H{"version": 2, "items": []upload.UploadedItem{}}},
		{http.MethodPost, reqPath + "/review", gin.H{"action": "approve"}},
		{http.MethodPost, reqPath + "/attachment/signed-download", nil},
		{http.MethodPost, reqPath + "/attachment/signed-upload", gin.H{"name": "template.docx"}},
		{http.MethodPost, "/files/" + fileID + "/signed-download", nil},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			body := tc.body
			if body == nil {
				body = gin.H{}
			}
			w := e.do(t, tc.method, tc.path, tok, body)
			assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, model.StatusReview, e.getRequirement(t, e.token(t, e.admin)).Status)
}

func TestRouter_UnknownRequirementIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/document-requests/does-not-exist/uploads/init", e.token(t, e.admin),
		gin.H{"files": []upload.FileDescriptor{{Name: "x.pdf", Size: 1}}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ProjectListingScopedByRole(t *testing.T) {
	e := newTestEnv(t)
	e.db.SeedProject("unrelated", e.db.SeedUser("other@example.com", "client").ID)

	count := func(u *model.User) int {
		w := e.do(t, http.MethodGet, "/projects", e.token(t, u), nil)
		require.Equal(t, http.StatusOK, w.Code)
		return len(decode[map[string][]model.Project](t, w)["projects"])
	}
	assert.Equal(t, 2, count(e.admin))
	assert.Equal(t, 1, count(e.client))
	assert.Equal(t, 1, count(e.member))
	assert.Equal(t, 0, count(e.outsider))
}

func TestRouter_LoginAndMe(t *testing.T) {
	e := newTestEnv(t)
	hash, err := util.HashPassword("hunter22")
	require.NoError(t, err)
	u := &model.User{Email: "reviewer@example.com", FullName: "Reviewer", Role: "consultant", PasswordHash: hash}
	require.NoError(t, e.db.Users().Create(context.Background(), u))

	w := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": u.Email, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": u.Email, "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[auth.LoginResult](t, w)

	w = e.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[auth.Me](t, w)
	assert.Equal(t, u.ID, me.ID)
	assert.Equal(t, "consultant", me.Role)

	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": u.Email})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_LoginThrottled(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 3; i++ {
		w := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "nobody@example.com", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "nobody@example.com", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_AdminOutboxRequiresPermission(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/admin/outbox/replay?id=7", e.token(t, e.member), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, e.replayer.replayed)

	w = e.do(t, http.MethodPost, "/admin/outbox/replay?id=7", e.token(t, e.admin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{7}, e.replayer.replayed)

	w = e.do(t, http.MethodPost, "/admin/outbox/replay?id=abc", e.token(t, e.admin), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
