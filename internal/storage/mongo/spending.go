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

type spendingDoc struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty"`
	UserID             primitive.ObjectID   `bson:"userId"`
	BusinessID         primitive.ObjectID   `bson:"businessId"`
	Amount             primitive.Decimal128 `bson:"amount"`
	Description        string               `bson:"description,omitempty"`
	Category           string               `bson:"category"`
	Timestamp          time.Time            `bson:"timestamp"`
	Location           geoPoint             `bson:"location"`
	PaymentMethod      string               `bson:"paymentMethod"`
	IsApprovedByParent bool                 `bson:"isApprovedByParent"`
	Tags               []string             `bson:"tags,omitempty"`
	Receipt            *receiptDoc          `bson:"receipt,omitempty"`
}

type receiptDoc struct {
	URL        string     `bson:"url"`
	UploadedAt *time.Time `bson:"uploadedAt,omitempty"`
}

func (d spendingDoc) model() models.Spending {
	sp := models.Spending{
		ID:                 d.ID.Hex(),
		UserID:             hexOrEmpty(d.UserID),
		BusinessID:         hexOrEmpty(d.BusinessID),
		Amount:             fromD128(d.Amount),
		Description:        d.Description,
		Category:           d.Category,
		Timestamp:          d.Timestamp,
		Location:           d.Location.point(),
		PaymentMethod:      d.PaymentMethod,
		IsApprovedByParent: d.IsApprovedByParent,
		Tags:               d.Tags,
	}
	if d.Receipt != nil {
		sp.Receipt = &models.Receipt{URL: d.Receipt.URL, UploadedAt: d.Receipt.UploadedAt}
	}
	return sp
}

func (s *Store) CreateSpending(ctx context.Context, sp models.Spending) (models.Spending, error) {
	userID, err := objectID(sp.UserID)
	if err != nil {
		return models.Spending{}, err
	}
	businessID, err := objectID(sp.BusinessID)
	if err != nil {
		return models.Spending{}, err
	}
	if sp.Timestamp.IsZero() {
		sp.Timestamp = time.Now().UTC()
	}
	doc := spendingDoc{
		ID:                 primitive.NewObjectID(),
		UserID:             userID,
		BusinessID:         businessID,
		Amount:             toD128(sp.Amount),
		Description:        sp.Description,
		Category:           sp.Category,
		Timestamp:          sp.Timestamp.Truncate(time.Millisecond),
		Location:           toGeo(sp.Location),
		PaymentMethod:      sp.PaymentMethod,
		IsApprovedByParent: sp.IsApprovedByParent,
		Tags:               sp.Tags,
	}
	if sp.Receipt != nil {
		doc.Receipt = &receiptDoc{URL: sp.Receipt.URL, UploadedAt: sp.Receipt.UploadedAt}
	}
	if _, err := s.spending.InsertOne(ctx, doc); err != nil {
		return models.Spending{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) GetSpending(ctx context.Context, id string) (models.Spending, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.Spending{}, err
	}
	var doc spendingDoc
	if err := s.spending.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return models.Spending{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) ListSpendingByUser(ctx context.Context, userID string, limit int) ([]models.Spending, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []models.Spending{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findSpending(ctx, bson.M{"userId": oid}, opts)
}

func (s *Store) NearbySpending(ctx context.Context, p models.Point, maxMeters float64) ([]models.Spending, error) {
	return s.findSpending(ctx, nearFilter(p, maxMeters), options.Find())
}

// TotalsByCategory groups with the aggregation pipeline, largest total first.
func (s *Store) TotalsByCategory(ctx context.Context, userID string, from, to time.Time) ([]models.CategoryTotal, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []models.CategoryTotal{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": oid, "timestamp": bson.M{"$gte": from, "$lte": to}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "total": bson.M{"$sum": "$amount"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	rows, err := s.aggregateTotals(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]models.CategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CategoryTotal{Category: r.Key, Total: fromD128(r.Total)})
	}
	return out, nil
}

// DailyTotals groups by the UTC calendar day of the timestamp.
func (s *Store) DailyTotals(ctx context.Context, userID string, since time.Time) ([]models.DailyTotal, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []models.DailyTotal{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": oid, "timestamp": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
			"total": bson.M{"$sum": "$amount"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	rows, err := s.aggregateTotals(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]models.DailyTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DailyTotal{Date: r.Key, Total: fromD128(r.Total)})
	}
	return out, nil
}

type totalRow struct {
	Key   string               `bson:"_id"`
	Total primitive.Decimal128 `bson:"total"`
}

func (s *Store) aggregateTotals(ctx context.Context, pipeline mongo.Pipeline) ([]totalRow, error) {
	cur, err := s.spending.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []totalRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ApproveSpending only matches documents that are still unapproved.
func (s *Store) ApproveSpending(ctx context.Context, id string) (models.Spending, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.Spending{}, err
	}
	var doc spendingDoc
	err = s.spending.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "isApprovedByParent": false},
		bson.M{"$set": bson.M{"isApprovedByParent": true}},
		afterUpdate(),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := s.spending.CountDocuments(ctx, bson.M{"_id": oid})
		if countErr != nil {
			return models.Spending{}, countErr
		}
		if n > 0 {
			return models.Spending{}, storage.ErrConflict
		}
		return models.Spending{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Spending{}, err
	}
	return doc.model(), nil
}

func (s *Store) findSpending(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Spending, error) {
	cur, err := s.spending.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []spendingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Spending, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
