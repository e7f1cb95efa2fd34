package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

type sampleClass struct {
	category   model.Category
	instructor string
	offset     time.Duration
	slots      int
}

// Offsets are from 09:00 today in the display timezone.
var sampleClasses = []sampleClass{
	{model.CategoryYoga, "Priya Sharma", 24 * time.Hour, 15},
	{model.CategoryZumba, "Rahul Gupta", 26 * time.Hour, 20},
	{model.CategoryHIIT, "Anjali Verma", 48 * time.Hour, 12},
	{model.CategoryYoga, "Suresh Kumar", 72 * time.Hour, 18},
	{model.CategoryZumba, "Meera Patel", 96 * time.Hour, 25},
	{model.CategoryHIIT, "Karan Singh", 120 * time.Hour, 15},
}

// SeedSampleClasses schedules the demo timetable over the next five days.
func (s *CatalogService) SeedSampleClasses(ctx context.Context) ([]model.ClassView, error) {
	local := s.now().In(s.loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), 9, 0, 0, 0, s.loc)

	views := make([]model.ClassView, 0, len(sampleClasses))
	for _, sc := range sampleClasses {
		view, err := s.CreateClass(ctx, model.CreateClassRequest{
			Category:   string(sc.category),
			Instructor: sc.instructor,
			StartTime:  base.Add(sc.offset),
			TotalSlots: sc.slots,
		})
		if err != nil {
			return views, fmt.Errorf("seed %s with %s: %w", sc.category, sc.instructor, err)
		}
		views = append(views, *view)
	}

	s.log.Info("sample classes seeded", zap.Int("count", len(views)))
	return views, nil
}
