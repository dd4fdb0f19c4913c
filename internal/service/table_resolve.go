package service

import (
	"context"
	"regexp"

	"tablelink-backend/internal/ports"
)

var numericToken = regexp.MustCompile(`[0-9]+`)

// ResolveTableNumber maps a free-text designator to a registered table
// number. Exact match wins, then the first numeric token; anything else
// passes through verbatim to tolerate legacy inputs.
func ResolveTableNumber(ctx context.Context, tables ports.TableStore, storeID int64, designator string) string {
	if t, err := tables.GetByNumber(ctx, storeID, designator); err == nil {
		return t.TableNumber
	}
	if token := numericToken.FindString(designator); token != "" {
		if t, err := tables.GetByNumber(ctx, storeID, token); err == nil {
			return t.TableNumber
		}
	}
	return designator
}
