// Package memory is an in-process implementation of the repository interfaces,
// used by service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"docportal/internal/apperr"
	"docportal/internal/model"

	"github.com/google/uuid"
)

// DB 共享状态；各仓储类型只是它的不同视图
type DB struct {
	mu           sync.RWMutex
	users        map[string]model.User
	projects     map[string]model.Project
	members      map[string]map[string]time.Time
	requirements map[string]model.DocumentRequirement
	files        []model.FileVersion

	clock time.Time

	// FailUserLookup 非 nil 时 Users().GetByID 返回该错误
	FailUserLookup error
}

func New() *DB {
	return &DB{
		users:        map[string]model.User{},
		projects:     map[string]model.Project{},
		members:      map[string]map[string]time.Time{},
		requirements: map[string]model.DocumentRequirement{},
		clock:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick 单调递增的时间，保证 created_at 有确定的先后
func (db *DB) tick() time.Time {
	db.clock = db.clock.Add(time.Millisecond)
	return db.clock
}

func (db *DB) Users() *Users               { return &Users{db: db} }
func (db *DB) Projects() *Projects         { return &Projects{db: db} }
func (db *DB) Requirements() *Requirements { return &Requirements{db: db} }
func (db *DB) Files() *Files               { return &Files{db: db} }

// ---- users ----

type Users struct{ db *DB }

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Validation("email %s already exists", u.Email)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.db.tick()
	r.db.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if r.db.FailUserLookup != nil {
		return nil, r.db.FailUserLookup
	}
	u, ok := r.db.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return &u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user", email)
}

// ---- projects ----

type Projects struct{ db *DB }

func (r *Projects) Create(_ context.Context, p *model.Project, initialMember string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := r.db.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	r.db.projects[p.ID] = *p
	if initialMember != "" {
		r.db.members[p.ID] = map[string]time.Time{initialMember: now}
	}
	return nil
}

func (r *Projects) GetByID(_ context.Context, id string) (*model.Project, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.projects[id]
	if !ok {
		return nil, apperr.NotFound("project", id)
	}
	return &p, nil
}

func (r *Projects) filter(keep func(model.Project) bool) []model.Project {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []model.Project{}
	for _, p := range r.db.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Projects) List(_ context.Context) ([]model.Project, error) {
	return r.filter(func(model.Project) bool { return true }), nil
}

func (r *Projects) ListByClient(_ context.Context, clientID string) ([]model.Project, error) {
	return r.filter(func(p model.Project) bool { return p.ClientID == clientID }), nil
}

func (r *Projects) ListByConsultant(_ context.Context, consultantID string) ([]model.Project, error) {
	return r.filter(func(p model.Project) bool {
		_, ok := r.db.members[p.ID][consultantID]
		return ok
	}), nil
}

func (r *Projects) IsMember(_ context.Context, projectID, consultantID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	_, ok := r.db.members[projectID][consultantID]
	return ok, nil
}

func (r *Projects) AddMember(_ context.Context, projectID, consultantID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.projects[projectID]; !ok {
		return apperr.NotFound("project", projectID)
	}
	if r.db.members[projectID] == nil {
		r.db.members[projectID] = map[string]time.Time{}
	}
	if _, ok := r.db.members[projectID][consultantID]; !ok {
		r.db.members[projectID][consultantID] = r.db.tick()
	}
	return nil
}

func (r *Projects) RemoveMember(_ context.Context, projectID, consultantID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.members[projectID][consultantID]; !ok {
		return apperr.NotFound("membership", consultantID)
	}
	delete(r.db.members[projectID], consultantID)
	return nil
}

func (r *Projects) ListMembers(_ context.Context, projectID string) ([]model.ProjectMember, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []model.ProjectMember{}
	for id, at := range r.db.members[projectID] {
		u := r.db.users[id]
		out = append(out, model.ProjectMember{
			ProjectID:    projectID,
			ConsultantID: id,
			Email:        u.Email,
			FullName:     u.FullName,
			CreatedAt:    at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- requirements ----

type Requirements struct{ db *DB }

func (r *Requirements) Create(_ context.Context, req *model.DocumentRequirement) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.projects[req.ProjectID]; !ok {
		return apperr.NotFound("project", req.ProjectID)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := r.db.tick()
	req.CreatedAt, req.UpdatedAt = now, now
	r.db.requirements[req.ID] = *req
	return nil
}

func (r *Requirements) GetByID(_ context.Context, id string) (*model.DocumentRequirement, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	req, ok := r.db.requirements[id]
	if !ok {
		return nil, apperr.NotFound("requirement", id)
	}
	return &req, nil
}

func (r *Requirements) ListByProject(_ context.Context, projectID string) ([]model.DocumentRequirement, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []model.DocumentRequirement{}
	for _, req := range r.db.requirements {
		if req.ProjectID == projectID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Requirements) Update(_ context.Context, req *model.DocumentRequirement) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.requirements[req.ID]
	if !ok {
		return apperr.NotFound("requirement", req.ID)
	}
	cur.Name = req.Name
	cur.Description = req.Description
	cur.Mandatory = req.Mandatory
	cur.Deadline = req.Deadline
	cur.AttachmentPath = req.AttachmentPath
	cur.UpdatedAt = r.db.tick()
	r.db.requirements[req.ID] = cur
	req.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *Requirements) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.requirements[id]; !ok {
		return apperr.NotFound("requirement", id)
	}
	delete(r.db.requirements, id)
	kept := r.db.files[:0]
	for _, f := range r.db.files {
		if f.RequirementID != id {
			kept = append(kept, f)
		}
	}
	r.db.files = kept
	return nil
}

func (r *Requirements) AppendSubmission(_ context.Context, requirementID string, version int, files []*model.FileVersion) (model.Transition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requirements[requirementID]
	if !ok {
		return model.Transition{}, apperr.NotFound("requirement", requirementID)
	}
	tr, err := applyEvent(req.Status, model.EventSubmission)
	if err != nil {
		return tr, err
	}
	if latest := r.db.maxVersion(requirementID); !model.AcceptsVersion(version, latest) {
		return tr, fmt.Errorf("version %d against latest %d: %w", version, latest, model.ErrVersionConflict)
	}

	for _, f := range files {
		f.ID = uuid.NewString()
		f.RequirementID = requirementID
		f.VersionNumber = version
		f.CreatedAt = r.db.tick()
		r.db.files = append(r.db.files, *f)
	}
	req.Status = tr.To
	req.UpdatedAt = r.db.tick()
	r.db.requirements[requirementID] = req
	return tr, nil
}

func (r *Requirements) ApplyDecision(_ context.Context, requirementID string, event model.RequirementEvent, note *string) (model.Transition, *model.FileVersion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requirements[requirementID]
	if !ok {
		return model.Transition{}, nil, apperr.NotFound("requirement", requirementID)
	}
	tr, err := applyEvent(req.Status, event)
	if err != nil {
		return tr, nil, err
	}
	if tr.From == model.StatusApproved {
		return tr, nil, nil
	}

	var annotated *model.FileVersion
	if note != nil {
		if i := r.db.latestFileIndex(requirementID); i >= 0 {
			n := *note
			r.db.files[i].Comment = &n
			f := r.db.files[i]
			annotated = &f
		}
	}

	req.Status = tr.To
	req.UpdatedAt = r.db.tick()
	r.db.requirements[requirementID] = req
	return tr, annotated, nil
}

func applyEvent(current model.RequirementStatus, event model.RequirementEvent) (model.Transition, error) {
	next, err := current.Next(event)
	if err != nil {
		return model.Transition{From: current, To: current}, fmt.Errorf("%s on %s: %w", event, current, err)
	}
	return model.Transition{From: current, To: next}, nil
}

func (db *DB) maxVersion(requirementID string) int {
	max := 0
	for _, f := range db.files {
		if f.RequirementID == requirementID && f.VersionNumber > max {
			max = f.VersionNumber
		}
	}
	return max
}

// latestFileIndex 按 created_at desc, id desc 取最新文件的下标
func (db *DB) latestFileIndex(requirementID string) int {
	best := -1
	for i, f := range db.files {
		if f.RequirementID != requirementID {
			continue
		}
		if best < 0 || newer(f, db.files[best]) {
			best = i
		}
	}
	return best
}

func newer(a, b model.FileVersion) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ---- files ----

type Files struct{ db *DB }

func (r *Files) GetByID(_ context.Context, id string) (*model.FileVersion, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, f := range r.db.files {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, apperr.NotFound("file", id)
}

func (r *Files) collect(keep func(model.FileVersion) bool) []model.FileVersion {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []model.FileVersion{}
	for _, f := range r.db.files {
		if keep(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

func (r *Files) ListByRequirement(_ context.Context, requirementID string) ([]model.FileVersion, error) {
	return r.collect(func(f model.FileVersion) bool { return f.RequirementID == requirementID }), nil
}

func (r *Files) ListByProject(_ context.Context, projectID string) ([]model.FileVersion, error) {
	r.db.mu.RLock()
	reqs := map[string]bool{}
	for id, req := range r.db.requirements {
		if req.ProjectID == projectID {
			reqs[id] = true
		}
	}
	r.db.mu.RUnlock()
	return r.collect(func(f model.FileVersion) bool { return reqs[f.RequirementID] }), nil
}

func (r *Files) MaxVersion(_ context.Context, requirementID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.maxVersion(requirementID), nil
}
