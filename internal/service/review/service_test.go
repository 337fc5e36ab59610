package review

import (
	"context"
	"testing"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/audit"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	db         *memory.DB
	svc        *Service
	ev         *access.Evaluator
	sink       *audit.MemorySink
	admin      *model.User
	client     *model.User
	consultant *model.User
	outsider   *model.User
	project    *model.Project
	req        *model.DocumentRequirement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	f := &fixture{
		db:         db,
		sink:       audit.NewMemorySink(),
		admin:      db.SeedUser("admin@example.com", "admin"),
		client:     db.SeedUser("client@example.com", "client"),
		consultant: db.SeedUser("member@example.com", "consultant"),
		outsider:   db.SeedUser("outsider@example.com", "consultant"),
	}
	f.project = db.SeedProject("grant", f.client.ID, f.consultant.ID)
	f.req = db.SeedRequirement(f.project.ID, "signed contract")
	f.ev = access.NewEvaluator(db.Users(), db.Projects(), zap.NewNop())
	f.svc = NewService(db.Requirements(), f.ev, f.sink, zap.NewNop())
	return f
}

func (f *fixture) submit(t *testing.T, version int, names ...string) {
	t.Helper()
	rows := make([]*model.FileVersion, len(names))
	for i, n := range names {
		rows[i] = &model.FileVersion{VersionNumber: version, StoragePath: n, OriginalName: n, UploadedBy: f.client.ID}
	}
	_, err := f.db.Requirements().AppendSubmission(context.Background(), f.req.ID, version, rows)
	require.NoError(t, err)
}

func (f *fixture) files(t *testing.T) []model.FileVersion {
	t.Helper()
	files, err := f.db.Files().ListByRequirement(context.Background(), f.req.ID)
	require.NoError(t, err)
	return files
}

func (f *fixture) status(t *testing.T) model.RequirementStatus {
	t.Helper()
	r, err := f.db.Requirements().GetByID(context.Background(), f.req.ID)
	require.NoError(t, err)
	return r.Status
}

func TestScenarioB_RejectWithNote(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "contract.pdf")

	res, err := f.svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionReject, "  missing signature ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, res.Previous)
	assert.Equal(t, model.StatusRejected, res.Status)
	require.NotNil(t, res.AnnotatedFile)

	assert.Equal(t, model.StatusRejected, f.status(t))
	files := f.files(t)
	require.NotNil(t, files[0].Comment)
	assert.Equal(t, "missing signature", *files[0].Comment)

	e := f.sink.Last()
	assert.Equal(t, audit.ActionUpdate, e.Action)
	assert.Equal(t, f.admin.ID, e.ActorID)
	assert.Equal(t, "missing signature", e.After.(map[string]any)["note"])
}

func TestScenarioD_ApproveTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "contract.pdf")

	res, err := f.svc.DecideAsCaller(context.Background(), f.consultant.ID, f.req.ID, ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Status)
	assert.Nil(t, res.AnnotatedFile)
	events := len(f.sink.Entries())

	before := f.files(t)
	res, err = f.svc.DecideAsCaller(context.Background(), f.consultant.ID, f.req.ID, ActionApprove, "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Status)
	assert.Equal(t, model.StatusApproved, f.status(t))
	assert.Equal(t, before, f.files(t))
	assert.Len(t, f.sink.Entries(), events)
}

func TestRejectWithoutNote_NoMutation(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf", "b.pdf")
	before := f.files(t)

	for _, note := range []string{"", "   ", "\t\n"} {
		_, err := f.svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionReject, note)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, err.Error(), "reason")
	}

	assert.Equal(t, model.StatusReview, f.status(t))
	assert.Equal(t, before, f.files(t))
	assert.Empty(t, f.sink.Entries())
}

func TestDecision_OnlyLatestFileMutated(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "v1-a.pdf", "v1-b.pdf")
	f.submit(t, 2, "v2-a.pdf", "v2-b.pdf", "v2-c.pdf")
	before := f.files(t)

	_, err := f.svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionApprove, "internal: checked against registry")
	require.NoError(t, err)

	after := f.files(t)
	require.Len(t, after, len(before))
	assert.Equal(t, "v2-c.pdf", after[0].OriginalName)
	require.NotNil(t, after[0].Comment)
	assert.Equal(t, "internal: checked against registry", *after[0].Comment)
	assert.Equal(t, before[1:], after[1:])
}

func TestRejectTwice_OverwritesSameFile(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf", "b.pdf")
	ctx := context.Background()

	first, err := f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionReject, "missing signature")
	require.NoError(t, err)
	second, err := f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionReject, "wrong year")
	require.NoError(t, err)

	assert.Equal(t, first.AnnotatedFile.ID, second.AnnotatedFile.ID)
	assert.Equal(t, model.StatusRejected, second.Status)
	files := f.files(t)
	assert.Equal(t, "wrong year", *files[0].Comment)
	assert.Nil(t, files[1].Comment)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// pending：还没有提交
	_, err := f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionReject, "note")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, model.StatusPending, f.status(t))

	f.submit(t, 1, "a.pdf")
	_, err = f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionReject, "bad")
	require.NoError(t, err)
	_, err = f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, model.StatusRejected, f.status(t))

	_, err = f.svc.DecideAsCaller(ctx, f.admin.ID, f.req.ID, Action("escalate"), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDecide_AccessRules(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf")
	ctx := context.Background()

	_, err := f.svc.DecideAsCaller(ctx, f.client.ID, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.DecideAsCaller(ctx, f.outsider.ID, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.DecideAsCaller(ctx, f.admin.ID, "missing", ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 在另一个项目上拿到的授权不能用来审核本项目的需求
	other := f.db.SeedProject("other", f.client.ID, f.consultant.ID)
	grant, err := f.ev.Evaluate(ctx, other.ID, f.consultant.ID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, grant, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, model.StatusReview, f.status(t))
}

// interleavedDecisions 在本次写入之前先提交另一个审核决定
type interleavedDecisions struct {
	repository.RequirementRepository
	first func(ctx context.Context, requirementID string)
}

func (r *interleavedDecisions) ApplyDecision(ctx context.Context, requirementID string, event model.RequirementEvent, note *string) (model.Transition, *model.FileVersion, error) {
	if r.first != nil {
		r.first(ctx, requirementID)
		r.first = nil
	}
	return r.RequirementRepository.ApplyDecision(ctx, requirementID, event, note)
}

func (f *fixture) interleaved(t *testing.T, event model.RequirementEvent, note *string) *Service {
	t.Helper()
	repo := &interleavedDecisions{
		RequirementRepository: f.db.Requirements(),
		first: func(ctx context.Context, requirementID string) {
			_, _, err := f.db.Requirements().ApplyDecision(ctx, requirementID, event, note)
			require.NoError(t, err)
		},
	}
	return NewService(repo, f.ev, f.sink, zap.NewNop())
}

func TestReject_AfterConcurrentApproveIsRefused(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf")
	svc := f.interleaved(t, model.EventApprove, nil)

	_, err := svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionReject, "wrong year")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, model.StatusApproved, f.status(t))
	assert.Nil(t, f.files(t)[0].Comment)
	assert.Empty(t, f.sink.Entries())
}

func TestApprove_AfterConcurrentApproveIsNoop(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf")
	svc := f.interleaved(t, model.EventApprove, nil)

	res, err := svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionApprove, "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Previous)
	assert.Equal(t, model.StatusApproved, res.Status)
	assert.Nil(t, res.AnnotatedFile)

	assert.Nil(t, f.files(t)[0].Comment)
	assert.Empty(t, f.sink.Entries())
}

func TestApprove_AfterConcurrentRejectIsRefused(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 1, "a.pdf")
	reason := "missing signature"
	svc := f.interleaved(t, model.EventReject, &reason)

	_, err := svc.DecideAsCaller(context.Background(), f.admin.ID, f.req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, model.StatusRejected, f.status(t))
	require.NotNil(t, f.files(t)[0].Comment)
	assert.Equal(t, reason, *f.files(t)[0].Comment)
	assert.Empty(t, f.sink.Entries())
}
