package service

import (
	"context"
	"errors"

	"ontrak/internal/domain"
	"ontrak/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrTemplateValidation   = errors.New("template validation failed")
	ErrTemplateAccessDenied = errors.New("access denied to delete this template")
)

// --- Service Interface ---
type TemplateService interface {
	CreateTemplate(ctx context.Context, createdBy primitive.ObjectID, name, description string, totalDays int, activities []domain.PlannedActivity) (*domain.Template, error)
	GetTemplateByID(ctx context.Context, templateID primitive.ObjectID) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	DeleteTemplate(ctx context.Context, createdBy, templateID primitive.ObjectID) error
}

// --- Service Implementation ---

// templateService implements the TemplateService interface.
type templateService struct {
	templateRepo repository.TemplateRepository
}

// NewTemplateService creates a new instance of templateService.
func NewTemplateService(templateRepo repository.TemplateRepository) TemplateService {
	return &templateService{
		templateRepo: templateRepo,
	}
}

// CreateTemplate validates and stores a new multi-day program definition.
func (s *templateService) CreateTemplate(ctx context.Context, createdBy primitive.ObjectID, name, description string, totalDays int, activities []domain.PlannedActivity) (*domain.Template, error) {
	if name == "" || totalDays < 1 {
		return nil, ErrTemplateValidation
	}
	if createdBy == primitive.NilObjectID {
		return nil, errors.New("creator ID is required to create a template")
	}
	for _, a := range activities {
		if a.Name == "" || a.Day < 1 || a.Day > totalDays || a.DurationMinutes <= 0 {
			return nil, ErrTemplateValidation
		}
		if _, err := domain.ParseClock(a.StartTime); err != nil {
			return nil, ErrTemplateValidation
		}
	}

	template := &domain.Template{
		Name:        name,
		Description: description,
		TotalDays:   totalDays,
		Activities:  activities,
		CreatedBy:   createdBy,
	}

	templateID, err := s.templateRepo.Create(ctx, template)
	if err != nil {
		return nil, err
	}
	// Fetch again to get repository-populated timestamps.
	return s.templateRepo.GetByID(ctx, templateID)
}

// GetTemplateByID retrieves a single template.
func (s *templateService) GetTemplateByID(ctx context.Context, templateID primitive.ObjectID) (*domain.Template, error) {
	template, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return template, nil
}

// ListTemplates retrieves the whole catalog.
func (s *templateService) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return s.templateRepo.List(ctx)
}

// DeleteTemplate removes a template owned by the caller.
func (s *templateService) DeleteTemplate(ctx context.Context, createdBy, templateID primitive.ObjectID) error {
	err := s.templateRepo.Delete(ctx, templateID, createdBy)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	return nil
}
