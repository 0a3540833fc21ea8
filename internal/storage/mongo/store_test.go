package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

func TestDecimalConversion(t *testing.T) {
	for _, in := range []string{"0", "19.99", "20.01", "-3.5", "1234567.89"} {
		d := decimal.RequireFromString(in)
		require.True(t, d.Equal(fromD128(toD128(d))), in)
	}
}

func TestGeoPointOrder(t *testing.T) {
	p := models.Point{Lng: 19.8187, Lat: 41.3275}
	g := toGeo(p)
	require.Equal(t, "Point", g.Type)
	require.Equal(t, []float64{19.8187, 41.3275}, g.Coordinates)
	require.Equal(t, p, g.point())
	require.Equal(t, models.Point{}, geoPoint{}.point())
}

func TestObjectIDRejectsMalformed(t *testing.T) {
	_, err := objectID("not-an-id")
	require.ErrorIs(t, err, storage.ErrNotFound)

	oid := primitive.NewObjectID()
	parsed, err := objectID(oid.Hex())
	require.NoError(t, err)
	require.Equal(t, oid, parsed)
}

func TestUserDocRoundTrip(t *testing.T) {
	parent := primitive.NewObjectID()
	in := models.User{
		FirstName: "Eri", LastName: "Hoxha", Email: "Eri@Example.com", Role: models.RoleChild,
		ParentID:  parent.Hex(),
		TwoFactor: models.TwoFactorAuth{Enabled: true, Secret: "ABC"},
		Budget:    decimal.RequireFromString("150.25"),
	}
	doc := newUserDoc(in)
	require.Equal(t, "eri@example.com", doc.Email)
	require.Equal(t, models.DefaultAvatar, doc.Avatar)
	require.Equal(t, "weekly", doc.Allowance.Frequency)

	doc.ID = primitive.NewObjectID()
	out := doc.model()
	require.Equal(t, parent.Hex(), out.ParentID)
	require.True(t, out.TwoFactor.Enabled)
	require.Equal(t, "ABC", out.TwoFactor.Secret)
	require.Equal(t, "150.25", out.Budget.String())
	require.Equal(t, models.DefaultPreferences(), out.Preferences)
}

// TestStoreIntegration needs a MongoDB with 2dsphere support.
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_MONGO_INTEGRATION") != "true" {
		t.Skip("set RUN_MONGO_INTEGRATION=true to run this integration test")
	}
	uri := os.Getenv("MONGODB_URI")
	require.NotEmpty(t, uri, "MONGODB_URI is required")

	ctx := context.Background()
	dbName := fmt.Sprintf("youfin_test_%d", time.Now().UnixNano())
	store, err := New(ctx, uri, dbName)
	require.NoError(t, err)
	defer func() {
		_ = store.client.Database(dbName).Drop(ctx)
		store.Close()
	}()

	parent, err := store.CreateUser(ctx, models.User{FirstName: "Ana", LastName: "Test", Email: "p@x.io", Role: models.RoleParent})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, models.User{FirstName: "Ana", LastName: "Test", Email: "P@x.io", Role: models.RoleParent})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	child, err := store.CreateUser(ctx, models.User{FirstName: "Eri", LastName: "Test", Email: "c@x.io", Role: models.RoleChild, ParentID: parent.ID})
	require.NoError(t, err)
	require.NoError(t, store.LinkChild(ctx, parent.ID, child.ID))
	kids, err := store.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)

	business, err := store.CreateBusiness(ctx, models.Business{
		Name: "Cafe", Type: "food", Location: models.Point{Lng: 19.8187, Lat: 41.3275},
		Offers: []models.Offer{{Title: "2x1", IsActive: true, ValidUntil: time.Now().Add(time.Hour)}},
	})
	require.NoError(t, err)

	near, err := store.NearbyBusinesses(ctx, models.Point{Lng: 19.8190, Lat: 41.3276}, 500)
	require.NoError(t, err)
	require.Len(t, near, 1)

	_, err = store.ClaimOffer(ctx, business.ID, business.Offers[0].ID, child.ID, time.Now())
	require.NoError(t, err)
	_, err = store.ClaimOffer(ctx, business.ID, business.Offers[0].ID, child.ID, time.Now())
	require.ErrorIs(t, err, storage.ErrConflict)

	sp, err := store.CreateSpending(ctx, models.Spending{
		UserID: child.ID, BusinessID: business.ID, Amount: decimal.RequireFromString("25"),
		Category: "food", PaymentMethod: "cash", Location: business.Location,
	})
	require.NoError(t, err)
	_, err = store.ApproveSpending(ctx, sp.ID)
	require.NoError(t, err)
	_, err = store.ApproveSpending(ctx, sp.ID)
	require.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, store.AddSpent(ctx, child.ID, sp.Amount))
	child, err = store.GetUser(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, "25", child.Spent.String())

	totals, err := store.TotalsByCategory(ctx, child.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.Equal(t, "25", totals[0].Total.String())
}
