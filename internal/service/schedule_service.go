package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ontrak/internal/domain"
	"ontrak/internal/events"
	"ontrak/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrTemplateNotFound      = errors.New("template not found")
	ErrInvalidDay            = errors.New("day is outside the template's day range")
	ErrEmptyDay              = errors.New("template has no activities for that day")
	ErrSessionNotFound       = errors.New("schedule session not found")
	ErrActivityMismatch      = errors.New("active activity does not match the expected one")
	ErrNoNextActivity        = errors.New("no next activity to advance to")
	ErrNoPreviousActivity    = errors.New("no previous activity to go back to")
	ErrNoActiveSchedule      = errors.New("no active schedule for this trainer")
	ErrConflict              = errors.New("session was modified concurrently, reload and retry")
	ErrActivityCountMismatch = errors.New("activity order must contain each existing activity exactly once")
)

// defaultReorderStart is used when the first activity of a reordered day has
// no planned start time of its own.
const defaultReorderStart = "09:00"

// ActiveSessionSummary is the admin monitoring view of one live session.
type ActiveSessionSummary struct {
	SessionID       string    `json:"sessionId"`
	Title           string    `json:"title"`
	TrainerID       string    `json:"trainerId"`
	TrainerName     string    `json:"trainerName"`
	TemplateID      string    `json:"templateId"`
	TrainingName    string    `json:"trainingName"`
	CurrentActivity string    `json:"currentActivity"`
	Day             int       `json:"day"`
	StartedAt       time.Time `json:"startedAt"`
}

// --- Service Interface ---

// ScheduleService is the schedule execution state machine: it creates live
// sessions from template days, enforces the navigation rules, timestamps
// actual start/end, and terminates sessions.
type ScheduleService interface {
	StartDay(ctx context.Context, trainerID, templateID primitive.ObjectID, day int, title string) (*domain.ScheduleSession, error)
	Advance(ctx context.Context, trainerID, sessionID, activityID primitive.ObjectID) (*domain.ScheduleSession, error)
	Retreat(ctx context.Context, trainerID, sessionID, activityID primitive.ObjectID) (*domain.ScheduleSession, error)
	CloseDay(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error)
	CancelDay(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error)
	Reorder(ctx context.Context, trainerID, sessionID primitive.ObjectID, orderedActivityIDs []primitive.ObjectID) (*domain.ScheduleSession, error)
	CurrentSession(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error)
	ActiveSessions(ctx context.Context) ([]ActiveSessionSummary, error)
}

// --- Service Implementation ---

// scheduleService implements the ScheduleService interface.
type scheduleService struct {
	sessionRepo  repository.SessionRepository
	templateRepo repository.TemplateRepository
	userRepo     repository.UserRepository
	publisher    events.Publisher
	now          func() time.Time
}

// NewScheduleService creates a new instance of scheduleService. The
// publisher is injected so tests can substitute a recording or no-op
// implementation.
func NewScheduleService(
	sessionRepo repository.SessionRepository,
	templateRepo repository.TemplateRepository,
	userRepo repository.UserRepository,
	publisher events.Publisher,
) ScheduleService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &scheduleService{
		sessionRepo:  sessionRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StartDay creates a live session from one template day. Any other active
// session of the same trainer is cancelled first, so at most one active
// session per trainer exists afterwards.
func (s *scheduleService) StartDay(ctx context.Context, trainerID, templateID primitive.ObjectID, day int, title string) (*domain.ScheduleSession, error) {
	if trainerID == primitive.NilObjectID || templateID == primitive.NilObjectID {
		return nil, errors.New("trainer ID and template ID are required")
	}

	template, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	if day < 1 || day > template.TotalDays {
		return nil, ErrInvalidDay
	}
	planned := template.ActivitiesForDay(day)
	if len(planned) == 0 {
		return nil, ErrEmptyDay
	}

	// Enforce the single-active-session invariant before creating the new one.
	if err := s.cancelActiveSessions(ctx, trainerID); err != nil {
		return nil, err
	}

	now := s.now()
	activities := make([]domain.ActivityExecution, len(planned))
	for i, p := range planned {
		activities[i] = domain.ActivityExecution{
			ID:              primitive.NewObjectID(),
			Name:            p.Name,
			Description:     p.Description,
			StartTime:       p.StartTime,
			DurationMinutes: p.DurationMinutes,
			Status:          domain.ActivityPending,
		}
	}
	activities[0].Status = domain.ActivityInProgress
	activities[0].IsActive = true
	activities[0].ActualStart = &now

	if title == "" {
		title = fmt.Sprintf("%s — Day %d", template.Name, day)
	}

	session := &domain.ScheduleSession{
		Title:        title,
		TemplateID:   template.ID,
		TemplateName: template.Name,
		TrainerID:    trainerID,
		Day:          day,
		Activities:   activities,
		ActiveIndex:  0,
		Status:       domain.SessionActive,
	}

	sessionID, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	session.ID = sessionID

	s.publisher.Publish(events.ScheduleUpdated(session))
	return session, nil
}

// Advance completes the current activity and activates the next one with a
// freshly minted actual start.
func (s *scheduleService) Advance(ctx context.Context, trainerID, sessionID, activityID primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.getOwnedActiveSession(ctx, trainerID, sessionID)
	if err != nil {
		return nil, err
	}

	current := session.CurrentActivity()
	if current == nil || current.ID != activityID {
		return nil, ErrActivityMismatch
	}
	if session.ActiveIndex >= len(session.Activities)-1 {
		return nil, ErrNoNextActivity
	}

	now := s.now()
	current.Status = domain.ActivityCompleted
	current.Completed = true
	current.IsActive = false
	current.ActualEnd = &now

	session.ActiveIndex++
	next := &session.Activities[session.ActiveIndex]
	next.Status = domain.ActivityInProgress
	next.IsActive = true
	next.ActualStart = &now

	return s.saveAndPublish(ctx, session)
}

// Retreat undoes an erroneous advance: the current activity drops back to
// pending with its timestamps cleared, and the previous one becomes active
// again. The previous activity keeps the actual start/end from its first
// visit — the clock is not restarted when correcting a mistake.
func (s *scheduleService) Retreat(ctx context.Context, trainerID, sessionID, activityID primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.getOwnedActiveSession(ctx, trainerID, sessionID)
	if err != nil {
		return nil, err
	}

	current := session.CurrentActivity()
	if current == nil || current.ID != activityID {
		return nil, ErrActivityMismatch
	}
	if session.ActiveIndex == 0 {
		return nil, ErrNoPreviousActivity
	}

	current.Status = domain.ActivityPending
	current.IsActive = false
	current.Completed = false
	current.ActualStart = nil
	current.ActualEnd = nil

	session.ActiveIndex--
	previous := &session.Activities[session.ActiveIndex]
	previous.Status = domain.ActivityInProgress
	previous.IsActive = true
	previous.Completed = false
	// previous.ActualStart / ActualEnd deliberately untouched.

	return s.saveAndPublish(ctx, session)
}

// CloseDay completes the trainer's active session: the current activity is
// marked completed with an actual end, later activities stay pending (never
// executed, excluded from statistics).
func (s *scheduleService) CloseDay(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.activeSessionForTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current := session.CurrentActivity(); current != nil {
		current.Status = domain.ActivityCompleted
		current.Completed = true
		current.IsActive = false
		current.ActualEnd = &now
	}
	session.Status = domain.SessionCompleted
	session.EndedAt = &now

	return s.saveAndPublish(ctx, session)
}

// CancelDay aborts the trainer's active session: the current activity and
// every remaining one are marked cancelled.
func (s *scheduleService) CancelDay(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.activeSessionForTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}

	s.cancelSession(session)
	return s.saveAndPublish(ctx, session)
}

// Reorder applies a manual permutation of the activity list. Planned fields
// travel with the activity; start times are recomputed by walking the new
// order and summing durations from the new first entry's original start.
// Execution state (status, active flag, timestamps) stays at its array
// position — a documented carryover of the observed behavior, which can
// reassign completion state when completed and pending entries are moved
// past each other.
func (s *scheduleService) Reorder(ctx context.Context, trainerID, sessionID primitive.ObjectID, orderedActivityIDs []primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.getOwnedActiveSession(ctx, trainerID, sessionID)
	if err != nil {
		return nil, err
	}

	if len(orderedActivityIDs) != len(session.Activities) {
		return nil, ErrActivityCountMismatch
	}
	byID := make(map[primitive.ObjectID]*domain.ActivityExecution, len(session.Activities))
	for i := range session.Activities {
		byID[session.Activities[i].ID] = &session.Activities[i]
	}

	reordered := make([]domain.ActivityExecution, len(orderedActivityIDs))
	seen := make(map[primitive.ObjectID]bool, len(orderedActivityIDs))
	for i, id := range orderedActivityIDs {
		src, ok := byID[id]
		if !ok || seen[id] {
			return nil, ErrActivityCountMismatch
		}
		seen[id] = true

		// Planned identity moves; execution state is taken from the entry
		// that previously sat at this position.
		old := session.Activities[i]
		reordered[i] = domain.ActivityExecution{
			ID:              src.ID,
			Name:            src.Name,
			Description:     src.Description,
			StartTime:       src.StartTime,
			DurationMinutes: src.DurationMinutes,
			Status:          old.Status,
			IsActive:        old.IsActive,
			Completed:       old.Completed,
			ActualStart:     old.ActualStart,
			ActualEnd:       old.ActualEnd,
		}
	}

	// Recompute the planned timeline along the new order.
	start := reordered[0].StartTime
	if start == "" {
		start = defaultReorderStart
	}
	cursor, err := domain.ParseClock(start)
	if err != nil {
		cursor, _ = domain.ParseClock(defaultReorderStart)
	}
	for i := range reordered {
		reordered[i].StartTime = domain.FormatClock(cursor)
		cursor += reordered[i].DurationMinutes
	}

	session.Activities = reordered
	return s.saveAndPublish(ctx, session)
}

// CurrentSession returns the trainer's active session started today, or nil
// when there is none.
func (s *scheduleService) CurrentSession(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error) {
	sessions, err := s.sessionRepo.GetActiveByTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range sessions {
		if sameDate(sessions[i].CreatedAt, now) {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// ActiveSessions lists every live session with trainer names resolved.
// Admin-only at the API boundary.
func (s *scheduleService) ActiveSessions(ctx context.Context) ([]ActiveSessionSummary, error) {
	sessions, err := s.sessionRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	trainers, err := s.userRepo.GetByRole(ctx, domain.RoleTrainer)
	if err != nil {
		return nil, err
	}
	names := make(map[primitive.ObjectID]string, len(trainers))
	for _, t := range trainers {
		names[t.ID] = t.Name
	}

	summaries := make([]ActiveSessionSummary, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		currentName := ""
		if current := sess.CurrentActivity(); current != nil {
			currentName = current.Name
		}
		summaries = append(summaries, ActiveSessionSummary{
			SessionID:       sess.ID.Hex(),
			Title:           sess.Title,
			TrainerID:       sess.TrainerID.Hex(),
			TrainerName:     names[sess.TrainerID],
			TemplateID:      sess.TemplateID.Hex(),
			TrainingName:    sess.TemplateName,
			CurrentActivity: currentName,
			Day:             sess.Day,
			StartedAt:       sess.CreatedAt,
		})
	}
	return summaries, nil
}

// === internal helpers ===

// getOwnedActiveSession loads a session and checks ownership and liveness.
// A session owned by someone else is reported as not found, not forbidden,
// so session ids do not leak across trainers.
func (s *scheduleService) getOwnedActiveSession(ctx context.Context, trainerID, sessionID primitive.ObjectID) (*domain.ScheduleSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.TrainerID != trainerID || session.Status != domain.SessionActive {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// activeSessionForTrainer resolves the implicit target of close/cancel.
func (s *scheduleService) activeSessionForTrainer(ctx context.Context, trainerID primitive.ObjectID) (*domain.ScheduleSession, error) {
	sessions, err := s.sessionRepo.GetActiveByTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNoActiveSchedule
	}
	return &sessions[0], nil
}

// cancelSession flips the session and everything at or after the active
// pointer to cancelled. Earlier, already completed entries are left alone.
func (s *scheduleService) cancelSession(session *domain.ScheduleSession) {
	now := s.now()
	for i := session.ActiveIndex; i < len(session.Activities); i++ {
		activity := &session.Activities[i]
		activity.Status = domain.ActivityCancelled
		activity.IsActive = false
		activity.Completed = false
	}
	session.Status = domain.SessionCancelled
	session.EndedAt = &now
}

// cancelActiveSessions cancels every active session of the trainer and
// broadcasts each one.
func (s *scheduleService) cancelActiveSessions(ctx context.Context, trainerID primitive.ObjectID) error {
	sessions, err := s.sessionRepo.GetActiveByTrainer(ctx, trainerID)
	if err != nil {
		return err
	}
	for i := range sessions {
		session := &sessions[i]
		s.cancelSession(session)
		if err := s.sessionRepo.UpdateVersioned(ctx, session); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return ErrConflict
			}
			return err
		}
		s.publisher.Publish(events.ScheduleUpdated(session))
	}
	return nil
}

// saveAndPublish persists a mutated session and broadcasts the snapshot.
func (s *scheduleService) saveAndPublish(ctx context.Context, session *domain.ScheduleSession) (*domain.ScheduleSession, error) {
	if err := s.sessionRepo.UpdateVersioned(ctx, session); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.publisher.Publish(events.ScheduleUpdated(session))
	return session, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
