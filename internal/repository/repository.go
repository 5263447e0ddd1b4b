package repository

import (
	"context"
	"time"

	"ontrak/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer
var (
	ErrNotFound        = RepositoryError("not found")
	ErrVersionConflict = RepositoryError("version conflict")
	ErrUpdateFailed    = RepositoryError("update failed")
	ErrDeleteFailed    = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

// TemplateRepository defines the interface for the training template catalog.
type TemplateRepository interface {
	Create(ctx context.Context, template *domain.Template) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Delete(ctx context.Context, id primitive.ObjectID, createdBy primitive.ObjectID) error // Ensure creator owns the template
}

// SessionQuery narrows FindCompleted. Nil/zero fields are not applied.
type SessionQuery struct {
	TrainerID  *primitive.ObjectID
	TemplateID *primitive.ObjectID
	Day        int
	Since      *time.Time
}

// SessionRepository defines the interface for schedule session data.
// UpdateVersioned is the single mutation path for existing sessions: the
// write is rejected with ErrVersionConflict when the stored version no
// longer matches the one the document was loaded with.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.ScheduleSession) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ScheduleSession, error)
	GetActiveByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.ScheduleSession, error)
	GetActive(ctx context.Context) ([]domain.ScheduleSession, error)
	FindCompleted(ctx context.Context, query SessionQuery) ([]domain.ScheduleSession, error)
	UpdateVersioned(ctx context.Context, session *domain.ScheduleSession) error
}

// ExportRepository defines the interface for archived report metadata.
type ExportRepository interface {
	Create(ctx context.Context, export *domain.ReportExport) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ReportExport, error)
	GetByRequester(ctx context.Context, userID primitive.ObjectID) ([]domain.ReportExport, error)
	Delete(ctx context.Context, id primitive.ObjectID, requestedBy primitive.ObjectID) error // Ensure requester owns the export
}
