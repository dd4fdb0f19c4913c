package repository

import (
	"context"

	"tablelink-backend/internal/domain"
)

// SeedDefaultLevels installs the standard loyalty tiers for a store.
func (r LoyaltyRepository) SeedDefaultLevels(ctx context.Context, storeID int64) error {
	defaults := []domain.Level{
		{Rank: 1, Name: "새싹 단골", Description: "첫 방문을 환영합니다", RequiredPoints: 0, RequiredTotalSpent: 0, RequiredVisitCount: 1, EvalPolicy: domain.EvalPolicyAnd},
		{Rank: 2, Name: "단골", Description: "자주 찾아주시는 손님", RequiredPoints: 3000, RequiredTotalSpent: 100000, RequiredVisitCount: 5, EvalPolicy: domain.EvalPolicyOr},
		{Rank: 3, Name: "찐단골", Description: "매장의 진짜 단골 손님", RequiredPoints: 10000, RequiredTotalSpent: 300000, RequiredVisitCount: 15, EvalPolicy: domain.EvalPolicyAnd},
		{Rank: 4, Name: "VIP", Description: "최고 등급 단골 손님", RequiredPoints: 30000, RequiredTotalSpent: 1000000, RequiredVisitCount: 30, EvalPolicy: domain.EvalPolicyAnd},
	}

	for _, l := range defaults {
		// Idempotent: (store_id, level_rank) is unique.
		_, err := r.DB.Pool.Exec(ctx, `
			INSERT INTO regular_levels
			(store_id, level_rank, name, description, required_points, required_total_spent, required_visit_count, eval_policy, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)
			ON CONFLICT (store_id, level_rank) DO NOTHING
		`, storeID, l.Rank, l.Name, l.Description, l.RequiredPoints, l.RequiredTotalSpent, l.RequiredVisitCount, string(l.EvalPolicy))
		if err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaultLevelsForAllStores runs the level seed for every store, for
// idempotent startup seeding.
func (r LoyaltyRepository) SeedDefaultLevelsForAllStores(ctx context.Context) error {
	rows, err := r.DB.Pool.Query(ctx, `SELECT id FROM stores`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := r.SeedDefaultLevels(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
