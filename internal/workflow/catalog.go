package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"campus-portal/internal/apperr"
	"campus-portal/internal/models"
)

// publicStatuses are the states shown in the catalog.
var publicStatuses = []models.EventStatus{models.EventApproved, models.EventCompleted}

// Page is one page of the public catalog.
type Page struct {
	Events  []models.Event `json:"events"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int64          `json:"total"`
	Pages   int            `json:"pages"`
	HasNext bool           `json:"has_next"`
	HasPrev bool           `json:"has_prev"`
}

// Categories returns the fixed category vocabulary.
func (e *Engine) Categories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := e.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// ListPublic pages through approved and completed events by date. page < 1
// is treated as 1 and pages past the end are empty.
func (e *Engine) ListPublic(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = e.pageSize
	}

	db := e.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Event{}).Where("status IN ?", publicStatuses).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	pages := int((total + int64(perPage) - 1) / int64(perPage))
	out := &Page{
		Events:  []models.Event{},
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
	// Past the end there is nothing to fetch, and the offset could overflow.
	if page > pages {
		return out, nil
	}

	events := make([]models.Event, 0, perPage)
	if err := db.Preload("Category").
		Where("status IN ?", publicStatuses).
		Order("date asc, id asc").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out.Events = events
	return out, nil
}

func checkCategory(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&models.Category{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if n == 0 {
		return apperr.Validation("Invalid category.")
	}
	return nil
}
