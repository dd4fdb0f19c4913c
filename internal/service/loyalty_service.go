package service

import (
	"context"
	"fmt"
	"log/slog"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/ports"
)

// LoyaltyService evaluates store loyalty levels over the (user, store) stat.
type LoyaltyService struct {
	Repo   ports.LoyaltyStore
	Logger *slog.Logger
}

type LoyaltyOverview struct {
	Stat         *domain.LoyaltyStat
	CurrentLevel *domain.Level
	NextLevel    *domain.Level
}

// EvaluateLevel advances the user to the highest-ranked level whose condition
// the stat satisfies, appending a history record. Never downgrades.
func (s *LoyaltyService) EvaluateLevel(ctx context.Context, userID, storeID int64) error {
	stat, err := s.Repo.GetStat(ctx, userID, storeID)
	if err != nil {
		return err
	}
	levels, err := s.Repo.ListLevels(ctx, storeID)
	if err != nil {
		return err
	}

	var best *domain.Level
	for i := range levels {
		if levels[i].Satisfies(*stat) && (best == nil || levels[i].Rank > best.Rank) {
			best = &levels[i]
		}
	}
	if best == nil {
		return nil
	}

	if stat.CurrentLevelID != nil {
		current := levelByID(levels, *stat.CurrentLevelID)
		if current != nil && current.Rank >= best.Rank {
			return nil
		}
	}

	reason := fmt.Sprintf("points=%d totalSpent=%d visits=%d", stat.Points, stat.TotalSpent, stat.VisitCount)
	if err := s.Repo.SetCurrentLevel(ctx, userID, storeID, best.ID, stat.CurrentLevelID, reason); err != nil {
		return err
	}
	s.Logger.Info("loyalty level advanced", "userId", userID, "storeId", storeID, "level", best.Name, "rank", best.Rank)
	return nil
}

// Overview returns the stat with the current level and the next one to reach:
// the lowest rank strictly above the current, or rank 1 for users without a
// level yet.
func (s *LoyaltyService) Overview(ctx context.Context, userID, storeID int64) (*LoyaltyOverview, error) {
	stat, err := s.Repo.GetStat(ctx, userID, storeID)
	if err != nil {
		return nil, err
	}
	levels, err := s.Repo.ListLevels(ctx, storeID)
	if err != nil {
		return nil, err
	}

	out := &LoyaltyOverview{Stat: stat}
	currentRank := 0
	if stat.CurrentLevelID != nil {
		if current := levelByID(levels, *stat.CurrentLevelID); current != nil {
			out.CurrentLevel = current
			currentRank = current.Rank
		}
	}
	for i := range levels {
		if levels[i].Rank <= currentRank {
			continue
		}
		if out.NextLevel == nil || levels[i].Rank < out.NextLevel.Rank {
			out.NextLevel = &levels[i]
		}
	}
	return out, nil
}

func levelByID(levels []domain.Level, id int64) *domain.Level {
	for i := range levels {
		if levels[i].ID == id {
			return &levels[i]
		}
	}
	return nil
}
