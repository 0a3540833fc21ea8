package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	tirana := Point{Lng: 19.8187, Lat: 41.3275}
	require.InDelta(t, 0, DistanceMeters(tirana, tirana), 1e-6)

	bank := Point{Lng: 19.8195, Lat: 41.3280}
	d := DistanceMeters(tirana, bank)
	require.Greater(t, d, 80.0)
	require.Less(t, d, 100.0)

	durres := Point{Lng: 19.4417, Lat: 41.3233}
	require.InDelta(t, 31_500, DistanceMeters(tirana, durres), 1_000)
}

func TestPointValid(t *testing.T) {
	require.True(t, Point{Lng: 19.8, Lat: 41.3}.Valid())
	require.False(t, Point{Lng: 190, Lat: 41.3}.Valid())
	require.False(t, Point{Lng: 19.8, Lat: -91}.Valid())
}

func TestActiveOffers(t *testing.T) {
	now := time.Now()
	b := Business{Offers: []Offer{
		{ID: "live", IsActive: true, ValidUntil: now.Add(time.Hour)},
		{ID: "expired", IsActive: true, ValidUntil: now.Add(-time.Hour)},
		{ID: "claimed", IsActive: false, ValidUntil: now.Add(time.Hour)},
	}}

	active := b.ActiveOffers(now)
	require.Len(t, active, 1)
	require.Equal(t, "live", active[0].ID)

	offer, ok := b.FindOffer("claimed")
	require.True(t, ok)
	require.False(t, offer.Live(now))
	_, ok = b.FindOffer("missing")
	require.False(t, ok)
}

func TestNeedsParentApproval(t *testing.T) {
	threshold := decimal.NewFromInt(20)
	child := User{Role: RoleChild}
	parent := User{Role: RoleParent}

	require.False(t, NeedsParentApproval(child, decimal.NewFromInt(20), threshold))
	require.True(t, NeedsParentApproval(child, decimal.RequireFromString("20.01"), threshold))
	require.False(t, NeedsParentApproval(parent, decimal.NewFromInt(500), threshold))
}

func TestCategoryFor(t *testing.T) {
	require.Equal(t, "transport", CategoryFor("transport", "food"))
	require.Equal(t, "food", CategoryFor("", "food"))
	require.Equal(t, "other", CategoryFor("", "bank"))
	require.Equal(t, "other", CategoryFor("nonsense", "bank"))
}

func TestUserHelpers(t *testing.T) {
	u := User{Role: RoleParent, Children: []string{"c1"}, Budget: decimal.NewFromInt(100), Spent: decimal.NewFromInt(30)}
	require.True(t, u.IsParent())
	require.True(t, u.HasChild("c1"))
	require.False(t, u.HasChild("c2"))
	require.Equal(t, "70", u.Remaining().String())
	require.True(t, ValidRole(RoleBusiness))
	require.False(t, ValidRole("admin"))
}
