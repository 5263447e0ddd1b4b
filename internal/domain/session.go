package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus type for the schedule session lifecycle
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// ActivityStatus type for a single activity execution within a session
type ActivityStatus string

const (
	ActivityPending    ActivityStatus = "pending"
	ActivityInProgress ActivityStatus = "in-progress"
	ActivityCompleted  ActivityStatus = "completed"
	ActivityCancelled  ActivityStatus = "cancelled"
)

// ActivityExecution is one activity's planned-vs-actual record inside a
// session. Planned fields are copied from the template at start; execution
// fields are filled in as the trainer navigates the day.
type ActivityExecution struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	StartTime       string             `bson:"startTime" json:"startTime"` // planned "HH:MM"
	DurationMinutes int                `bson:"durationMinutes" json:"durationMinutes"`
	Status          ActivityStatus     `bson:"status" json:"status"`
	IsActive        bool               `bson:"isActive" json:"isActive"`
	Completed       bool               `bson:"completed" json:"completed"`
	ActualStart     *time.Time         `bson:"actualStart,omitempty" json:"actualStart,omitempty"`
	ActualEnd       *time.Time         `bson:"actualEnd,omitempty" json:"actualEnd,omitempty"`
}

// ScheduleSession is one trainer's live (or historical) execution of a single
// template day. The activity slice is fixed at creation; ActiveIndex is the
// canonical pointer to the current activity — never re-derive it by scanning
// for the IsActive flag.
type ScheduleSession struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title        string              `bson:"title" json:"title"`
	TemplateID   primitive.ObjectID  `bson:"templateId" json:"templateId"`
	TemplateName string              `bson:"templateName" json:"templateName"` // Denormalized for listings/statistics
	TrainerID    primitive.ObjectID  `bson:"trainerId" json:"trainerId"`
	Day          int                 `bson:"day" json:"day"`
	Activities   []ActivityExecution `bson:"activities" json:"activities"`
	ActiveIndex  int                 `bson:"activeIndex" json:"activeIndex"`
	Status       SessionStatus       `bson:"status" json:"status"`
	Version      int64               `bson:"version" json:"version"` // Optimistic concurrency token
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
	EndedAt      *time.Time          `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
}

// CurrentActivity returns the activity at ActiveIndex, or nil when the index
// is out of range (terminated sessions keep the last index).
func (s *ScheduleSession) CurrentActivity() *ActivityExecution {
	if s.ActiveIndex < 0 || s.ActiveIndex >= len(s.Activities) {
		return nil
	}
	return &s.Activities[s.ActiveIndex]
}
