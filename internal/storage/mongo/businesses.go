package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

type businessDoc struct {
	ID             primitive.ObjectID             `bson:"_id,omitempty"`
	Name           string                         `bson:"name"`
	Type           string                         `bson:"type"`
	Location       geoPoint                       `bson:"location"`
	Address        models.Address                 `bson:"address"`
	Description    string                         `bson:"description,omitempty"`
	BudgetCategory string                         `bson:"budgetCategory,omitempty"`
	Offers         []offerDoc                     `bson:"offers"`
	RaiffeisenInfo string                         `bson:"raiffeisenInfo,omitempty"`
	OperatingHours map[string]models.OpeningHours `bson:"operatingHours,omitempty"`
	Rating         float64                        `bson:"rating"`
	PriceLevel     int                            `bson:"priceLevel"`
	CreatedAt      time.Time                      `bson:"createdAt"`
}

type offerDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description,omitempty"`
	Discount    string             `bson:"discount,omitempty"`
	ValidUntil  time.Time          `bson:"validUntil"`
	IsActive    bool               `bson:"isActive"`
	ClaimedBy   string             `bson:"claimedBy,omitempty"`
	ClaimedAt   *time.Time         `bson:"claimedAt,omitempty"`
}

func newOfferDoc(o models.Offer) offerDoc {
	return offerDoc{
		ID:          primitive.NewObjectID(),
		Title:       o.Title,
		Description: o.Description,
		Discount:    o.Discount,
		ValidUntil:  o.ValidUntil,
		IsActive:    o.IsActive,
	}
}

func (o offerDoc) model() models.Offer {
	return models.Offer{
		ID:          o.ID.Hex(),
		Title:       o.Title,
		Description: o.Description,
		Discount:    o.Discount,
		ValidUntil:  o.ValidUntil,
		IsActive:    o.IsActive,
		ClaimedBy:   o.ClaimedBy,
		ClaimedAt:   o.ClaimedAt,
	}
}

func (d businessDoc) model() models.Business {
	b := models.Business{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Type:           d.Type,
		Location:       d.Location.point(),
		Address:        d.Address,
		Description:    d.Description,
		BudgetCategory: d.BudgetCategory,
		Offers:         make([]models.Offer, 0, len(d.Offers)),
		RaiffeisenInfo: d.RaiffeisenInfo,
		OperatingHours: d.OperatingHours,
		Rating:         d.Rating,
		PriceLevel:     d.PriceLevel,
		CreatedAt:      d.CreatedAt,
	}
	for _, o := range d.Offers {
		b.Offers = append(b.Offers, o.model())
	}
	return b
}

func (s *Store) CreateBusiness(ctx context.Context, business models.Business) (models.Business, error) {
	doc := businessDoc{
		ID:             primitive.NewObjectID(),
		Name:           business.Name,
		Type:           business.Type,
		Location:       toGeo(business.Location),
		Address:        business.Address,
		Description:    business.Description,
		BudgetCategory: business.BudgetCategory,
		Offers:         make([]offerDoc, 0, len(business.Offers)),
		RaiffeisenInfo: business.RaiffeisenInfo,
		OperatingHours: business.OperatingHours,
		Rating:         business.Rating,
		PriceLevel:     business.PriceLevel,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, o := range business.Offers {
		doc.Offers = append(doc.Offers, newOfferDoc(o))
	}
	if _, err := s.businesses.InsertOne(ctx, doc); err != nil {
		return models.Business{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) GetBusiness(ctx context.Context, id string) (models.Business, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.Business{}, err
	}
	var doc businessDoc
	if err := s.businesses.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return models.Business{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return s.findBusinesses(ctx, bson.M{}, byName())
}

func (s *Store) ListBusinessesByType(ctx context.Context, businessType string) ([]models.Business, error) {
	return s.findBusinesses(ctx, bson.M{"type": businessType}, byName())
}

// NearbyBusinesses relies on $near, which already returns closest first.
func (s *Store) NearbyBusinesses(ctx context.Context, p models.Point, maxMeters float64) ([]models.Business, error) {
	return s.findBusinesses(ctx, nearFilter(p, maxMeters), options.Find())
}

func (s *Store) ListWithActiveOffers(ctx context.Context, now time.Time) ([]models.Business, error) {
	filter := bson.M{"offers": bson.M{"$elemMatch": bson.M{
		"isActive":   true,
		"validUntil": bson.M{"$gt": now},
	}}}
	return s.findBusinesses(ctx, filter, byName())
}

func (s *Store) AddOffer(ctx context.Context, businessID string, offer models.Offer) (models.Offer, error) {
	oid, err := objectID(businessID)
	if err != nil {
		return models.Offer{}, err
	}
	doc := newOfferDoc(offer)
	res, err := s.businesses.UpdateByID(ctx, oid, bson.M{"$push": bson.M{"offers": doc}})
	if err != nil {
		return models.Offer{}, err
	}
	if res.MatchedCount == 0 {
		return models.Offer{}, storage.ErrNotFound
	}
	return doc.model(), nil
}

// ClaimOffer matches the live offer and deactivates it in the same update.
func (s *Store) ClaimOffer(ctx context.Context, businessID, offerID, userID string, now time.Time) (models.Offer, error) {
	bid, err := objectID(businessID)
	if err != nil {
		return models.Offer{}, err
	}
	oid, err := objectID(offerID)
	if err != nil {
		return models.Offer{}, err
	}
	claimedAt := now.UTC()
	filter := bson.M{"_id": bid, "offers": bson.M{"$elemMatch": bson.M{
		"_id":        oid,
		"isActive":   true,
		"validUntil": bson.M{"$gt": claimedAt},
	}}}
	update := bson.M{"$set": bson.M{
		"offers.$.isActive":  false,
		"offers.$.claimedBy": userID,
		"offers.$.claimedAt": claimedAt,
	}}
	var doc businessDoc
	err = s.businesses.FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := s.businesses.CountDocuments(ctx, bson.M{"_id": bid, "offers._id": oid})
		if countErr != nil {
			return models.Offer{}, countErr
		}
		if n > 0 {
			return models.Offer{}, storage.ErrConflict
		}
		return models.Offer{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Offer{}, err
	}
	for _, o := range doc.Offers {
		if o.ID == oid {
			return o.model(), nil
		}
	}
	return models.Offer{}, storage.ErrNotFound
}

func (s *Store) findBusinesses(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Business, error) {
	cur, err := s.businesses.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []businessDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Business, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func byName() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
}
