package service

import (
	"context"
	"sync"
	"time"

	"ontrak/internal/domain"
	"ontrak/internal/events"
	"ontrak/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes shared by the service tests. They mirror the
// Mongo implementations closely enough to exercise the services, including
// the version check on session updates.

type fakeUserRepo struct {
	mu         sync.Mutex
	users      map[primitive.ObjectID]domain.User
	byRoleErr  error
	byEmailErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := primitive.NewObjectID()
	user.ID = id
	r.users[id] = *user
	return id, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byEmailErr != nil {
		return nil, r.byEmailErr
	}
	for _, u := range r.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := u
	return &user, nil
}

func (r *fakeUserRepo) GetByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byRoleErr != nil {
		return nil, r.byRoleErr
	}
	var out []domain.User
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[primitive.ObjectID]domain.Template
	listErr   error
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: map[primitive.ObjectID]domain.Template{}}
}

func (r *fakeTemplateRepo) Create(_ context.Context, template *domain.Template) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := primitive.NewObjectID()
	template.ID = id
	r.templates[id] = *template
	return id, nil
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	template := t
	return &template, nil
}

func (r *fakeTemplateRepo) List(_ context.Context) ([]domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Template
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTemplateRepo) Delete(_ context.Context, id primitive.ObjectID, createdBy primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || t.CreatedBy != createdBy {
		return repository.ErrNotFound
	}
	delete(r.templates, id)
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]domain.ScheduleSession
	findErr  error
	// findUnfilteredErr fails only scans without a trainer filter, so the
	// ranking re-scan can break while the main scan succeeds.
	findUnfilteredErr error
	now               func() time.Time
	// forceConflict makes the next UpdateVersioned fail as if another writer
	// bumped the version first.
	forceConflict bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: map[primitive.ObjectID]domain.ScheduleSession{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cloneSession(s domain.ScheduleSession) domain.ScheduleSession {
	activities := make([]domain.ActivityExecution, len(s.Activities))
	copy(activities, s.Activities)
	s.Activities = activities
	return s
}

func (r *fakeSessionRepo) Create(_ context.Context, session *domain.ScheduleSession) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := primitive.NewObjectID()
	session.ID = id
	session.Version = 1
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.now()
	}
	session.UpdatedAt = session.CreatedAt
	r.sessions[id] = cloneSession(*session)
	return id, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.ScheduleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	session := cloneSession(s)
	return &session, nil
}

func (r *fakeSessionRepo) GetActiveByTrainer(_ context.Context, trainerID primitive.ObjectID) ([]domain.ScheduleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduleSession
	for _, s := range r.sessions {
		if s.TrainerID == trainerID && s.Status == domain.SessionActive {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) GetActive(_ context.Context) ([]domain.ScheduleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduleSession
	for _, s := range r.sessions {
		if s.Status == domain.SessionActive {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) FindCompleted(_ context.Context, query repository.SessionQuery) ([]domain.ScheduleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.findUnfilteredErr != nil && query.TrainerID == nil {
		return nil, r.findUnfilteredErr
	}
	var out []domain.ScheduleSession
	for _, s := range r.sessions {
		if s.Status != domain.SessionCompleted {
			continue
		}
		if query.TrainerID != nil && s.TrainerID != *query.TrainerID {
			continue
		}
		if query.TemplateID != nil && s.TemplateID != *query.TemplateID {
			continue
		}
		if query.Day != 0 && s.Day != query.Day {
			continue
		}
		if query.Since != nil && s.CreatedAt.Before(*query.Since) {
			continue
		}
		out = append(out, cloneSession(s))
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateVersioned(_ context.Context, session *domain.ScheduleSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.forceConflict || stored.Version != session.Version {
		r.forceConflict = false
		return repository.ErrVersionConflict
	}
	session.Version++
	session.UpdatedAt = r.now()
	r.sessions[session.ID] = cloneSession(*session)
	return nil
}

// seed stores a session directly, bypassing Create, for historical fixtures.
func (r *fakeSessionRepo) seed(session domain.ScheduleSession) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == primitive.NilObjectID {
		session.ID = primitive.NewObjectID()
	}
	if session.Version == 0 {
		session.Version = 1
	}
	r.sessions[session.ID] = cloneSession(session)
	return session.ID
}

func (r *fakeSessionRepo) stored(id primitive.ObjectID) domain.ScheduleSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSession(r.sessions[id])
}

type fakeExportRepo struct {
	mu      sync.Mutex
	exports []domain.ReportExport
}

func (r *fakeExportRepo) Create(_ context.Context, export *domain.ReportExport) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	export.ID = primitive.NewObjectID()
	export.CreatedAt = time.Now().UTC()
	r.exports = append(r.exports, *export)
	return export.ID, nil
}

func (r *fakeExportRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.ReportExport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.exports {
		if e.ID == id {
			export := e
			return &export, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeExportRepo) GetByRequester(_ context.Context, userID primitive.ObjectID) ([]domain.ReportExport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReportExport
	for _, e := range r.exports {
		if e.RequestedBy == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeExportRepo) Delete(_ context.Context, id primitive.ObjectID, requestedBy primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.exports {
		if e.ID == id && e.RequestedBy == requestedBy {
			r.exports = append(r.exports[:i], r.exports[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// fakeArchive records uploads in memory and mints deterministic URLs.
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]byte{}}
}

func (a *fakeArchive) Upload(_ context.Context, objectKey, _ string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[objectKey] = body
	return nil
}

func (a *fakeArchive) GeneratePresignedDownloadURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://archive.test/" + objectKey, nil
}

func (a *fakeArchive) DeleteObject(_ context.Context, objectKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, objectKey)
	return nil
}

func (a *fakeArchive) Bucket() string { return "test-reports" }

// recordingPublisher captures every published event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
