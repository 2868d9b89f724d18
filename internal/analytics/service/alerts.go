package service

import (
	"context"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/pkg/db/option"
)

const maxAlertPage = 200

func (s *Service) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.PerformanceAlert, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxAlertPage {
		limit = maxAlertPage
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.WithLimit(limit),
	}
	if !filter.Since.IsZero() {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.GTE,
			Value:    filter.Since,
		}))
	}

	rows, err := s.alerts.Find(ctx, &domain.PerformanceAlert{ClassID: filter.ClassID, Kind: filter.Kind}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PerformanceAlert, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}
