package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTicketStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ItemStatus
		want     TicketStatus
	}{
		{"no items", nil, TicketPending},
		{"all pending", []ItemStatus{ItemPending, ItemPending}, TicketPending},
		{"one cooking", []ItemStatus{ItemPending, ItemCooking}, TicketCooking},
		{"partially completed", []ItemStatus{ItemCompleted, ItemPending}, TicketCooking},
		{"all completed", []ItemStatus{ItemCompleted, ItemCompleted}, TicketCompleted},
		{"single completed", []ItemStatus{ItemCompleted}, TicketCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]TicketItem, len(tt.statuses))
			for i, st := range tt.statuses {
				items[i] = TicketItem{Status: st}
			}
			assert.Equal(t, tt.want, DeriveTicketStatus(items))
		})
	}
}

func TestLevelSatisfies(t *testing.T) {
	level := Level{RequiredPoints: 100, RequiredTotalSpent: 50000, RequiredVisitCount: 5}

	andLevel := level
	andLevel.EvalPolicy = EvalPolicyAnd
	orLevel := level
	orLevel.EvalPolicy = EvalPolicyOr

	full := LoyaltyStat{Points: 100, TotalSpent: 50000, VisitCount: 5}
	partial := LoyaltyStat{Points: 100, TotalSpent: 0, VisitCount: 0}
	none := LoyaltyStat{}

	assert.True(t, andLevel.Satisfies(full))
	assert.False(t, andLevel.Satisfies(partial))
	assert.True(t, orLevel.Satisfies(full))
	assert.True(t, orLevel.Satisfies(partial))
	assert.False(t, orLevel.Satisfies(none))
}

func TestSettlementOwnerSame(t *testing.T) {
	assert.True(t, MemberOwner(7).Same(MemberOwner(7)))
	assert.False(t, MemberOwner(7).Same(MemberOwner(8)))
	assert.True(t, GuestOwner("010-1").Same(GuestOwner("010-1")))
	assert.False(t, GuestOwner("010-1").Same(GuestOwner("010-2")))
	assert.False(t, MemberOwner(7).Same(GuestOwner("010-1")))
	assert.False(t, SettlementOwner{}.Same(SettlementOwner{}))
}
