package mongo

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

type userDoc struct {
	ID           primitive.ObjectID      `bson:"_id,omitempty"`
	FirstName    string                  `bson:"firstName"`
	LastName     string                  `bson:"lastName"`
	Username     string                  `bson:"username,omitempty"`
	Email        string                  `bson:"email"`
	PasswordHash string                  `bson:"password"`
	Role         string                  `bson:"role"`
	Business     *models.BusinessProfile `bson:"business,omitempty"`

	DateOfBirth *time.Time           `bson:"dateOfBirth,omitempty"`
	ParentID    primitive.ObjectID   `bson:"parentId,omitempty"`
	Children    []primitive.ObjectID `bson:"children"`

	TwoFactorAuth twoFactorDoc `bson:"twoFactorAuth"`

	IsVerified           bool       `bson:"isVerified"`
	VerificationToken    string     `bson:"verificationToken,omitempty"`
	VerificationExpires  *time.Time `bson:"verificationExpires,omitempty"`
	ResetPasswordToken   string     `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires *time.Time `bson:"resetPasswordExpires,omitempty"`
	LastLogin            *time.Time `bson:"lastLogin,omitempty"`

	Allowance     allowanceDoc         `bson:"allowance"`
	SpendingLimit spendingLimitDoc     `bson:"spendingLimit"`
	Budget        primitive.Decimal128 `bson:"budget"`
	Spent         primitive.Decimal128 `bson:"spent"`
	Goals         []goalDoc            `bson:"goals"`
	Avatar        string               `bson:"avatar"`
	Preferences   models.Preferences   `bson:"preferences"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type twoFactorDoc struct {
	Enabled    bool   `bson:"enabled"`
	Secret     string `bson:"secret,omitempty"`
	TempSecret string `bson:"tempSecret,omitempty"`
	OTPURL     string `bson:"otpURL,omitempty"`
}

type allowanceDoc struct {
	Amount    primitive.Decimal128 `bson:"amount"`
	Frequency string               `bson:"frequency"`
	LastPaid  *time.Time           `bson:"lastPaid,omitempty"`
}

type spendingLimitDoc struct {
	Daily   primitive.Decimal128 `bson:"daily"`
	Weekly  primitive.Decimal128 `bson:"weekly"`
	Monthly primitive.Decimal128 `bson:"monthly"`
}

type goalDoc struct {
	ID            primitive.ObjectID   `bson:"_id"`
	Name          string               `bson:"name"`
	TargetAmount  primitive.Decimal128 `bson:"targetAmount"`
	CurrentAmount primitive.Decimal128 `bson:"currentAmount"`
	Deadline      *time.Time           `bson:"deadline,omitempty"`
}

func newUserDoc(u models.User) userDoc {
	doc := userDoc{
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Business:     u.Business,
		DateOfBirth:  u.DateOfBirth,
		Children:     []primitive.ObjectID{},
		TwoFactorAuth: twoFactorDoc{
			Enabled:    u.TwoFactor.Enabled,
			Secret:     u.TwoFactor.Secret,
			TempSecret: u.TwoFactor.TempSecret,
			OTPURL:     u.TwoFactor.OTPURL,
		},
		IsVerified:           u.IsVerified,
		VerificationToken:    u.VerificationToken,
		VerificationExpires:  u.VerificationExpires,
		ResetPasswordToken:   u.ResetToken,
		ResetPasswordExpires: u.ResetExpires,
		LastLogin:            u.LastLogin,
		Allowance: allowanceDoc{
			Amount:    toD128(u.Allowance.Amount),
			Frequency: u.Allowance.Frequency,
			LastPaid:  u.Allowance.LastPaid,
		},
		SpendingLimit: spendingLimitDoc{
			Daily:   toD128(u.SpendingLimit.Daily),
			Weekly:  toD128(u.SpendingLimit.Weekly),
			Monthly: toD128(u.SpendingLimit.Monthly),
		},
		Budget:      toD128(u.Budget),
		Spent:       toD128(u.Spent),
		Goals:       []goalDoc{},
		Avatar:      u.Avatar,
		Preferences: u.Preferences,
	}
	if oid, err := primitive.ObjectIDFromHex(u.ParentID); err == nil {
		doc.ParentID = oid
	}
	if doc.Avatar == "" {
		doc.Avatar = models.DefaultAvatar
	}
	if doc.Preferences.Theme == "" {
		doc.Preferences = models.DefaultPreferences()
	}
	if doc.Allowance.Frequency == "" {
		doc.Allowance.Frequency = "weekly"
	}
	return doc
}

func (d userDoc) model() models.User {
	u := models.User{
		ID:           d.ID.Hex(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		Business:     d.Business,
		DateOfBirth:  d.DateOfBirth,
		ParentID:     hexOrEmpty(d.ParentID),
		TwoFactor: models.TwoFactorAuth{
			Enabled:    d.TwoFactorAuth.Enabled,
			Secret:     d.TwoFactorAuth.Secret,
			TempSecret: d.TwoFactorAuth.TempSecret,
			OTPURL:     d.TwoFactorAuth.OTPURL,
		},
		IsVerified:          d.IsVerified,
		VerificationToken:   d.VerificationToken,
		VerificationExpires: d.VerificationExpires,
		ResetToken:          d.ResetPasswordToken,
		ResetExpires:        d.ResetPasswordExpires,
		LastLogin:           d.LastLogin,
		Allowance: models.Allowance{
			Amount:    fromD128(d.Allowance.Amount),
			Frequency: d.Allowance.Frequency,
			LastPaid:  d.Allowance.LastPaid,
		},
		SpendingLimit: models.SpendingLimit{
			Daily:   fromD128(d.SpendingLimit.Daily),
			Weekly:  fromD128(d.SpendingLimit.Weekly),
			Monthly: fromD128(d.SpendingLimit.Monthly),
		},
		Budget:      fromD128(d.Budget),
		Spent:       fromD128(d.Spent),
		Avatar:      d.Avatar,
		Preferences: d.Preferences,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for _, c := range d.Children {
		u.Children = append(u.Children, c.Hex())
	}
	for _, g := range d.Goals {
		u.Goals = append(u.Goals, g.model())
	}
	return u
}

func (g goalDoc) model() models.Goal {
	return models.Goal{
		ID:            g.ID.Hex(),
		Name:          g.Name,
		TargetAmount:  fromD128(g.TargetAmount),
		CurrentAmount: fromD128(g.CurrentAmount),
		Deadline:      g.Deadline,
	}
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	doc := newUserDoc(user)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	doc.UpdatedAt = doc.CreatedAt
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return models.User{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.User{}, err
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error) {
	if tokenHash == "" {
		return models.User{}, storage.ErrNotFound
	}
	return s.findUser(ctx, bson.M{"verificationToken": tokenHash, "verificationExpires": bson.M{"$gt": now}})
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error) {
	if tokenHash == "" {
		return models.User{}, storage.ErrNotFound
	}
	return s.findUser(ctx, bson.M{"resetPasswordToken": tokenHash, "resetPasswordExpires": bson.M{"$gt": now}})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return models.User{}, translate(err)
	}
	return doc.model(), nil
}

// UpdateUser sets the mutable fields. Email, children, spent and goals have their own operations.
func (s *Store) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	oid, err := objectID(user.ID)
	if err != nil {
		return models.User{}, err
	}
	doc := newUserDoc(user)
	set := bson.M{
		"firstName":     doc.FirstName,
		"lastName":      doc.LastName,
		"username":      doc.Username,
		"password":      doc.PasswordHash,
		"business":      doc.Business,
		"twoFactorAuth": doc.TwoFactorAuth,
		"isVerified":    doc.IsVerified,
		"lastLogin":     doc.LastLogin,
		"allowance":     doc.Allowance,
		"spendingLimit": doc.SpendingLimit,
		"budget":        doc.Budget,
		"avatar":        doc.Avatar,
		"preferences":   doc.Preferences,
		"updatedAt":     time.Now().UTC(),
	}
	unset := bson.M{}
	setOrUnset := func(key string, value any, empty bool) {
		if empty {
			unset[key] = ""
		} else {
			set[key] = value
		}
	}
	setOrUnset("verificationToken", doc.VerificationToken, doc.VerificationToken == "")
	setOrUnset("verificationExpires", doc.VerificationExpires, doc.VerificationExpires == nil)
	setOrUnset("resetPasswordToken", doc.ResetPasswordToken, doc.ResetPasswordToken == "")
	setOrUnset("resetPasswordExpires", doc.ResetPasswordExpires, doc.ResetPasswordExpires == nil)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	var updated userDoc
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, afterUpdate()).Decode(&updated); err != nil {
		return models.User{}, translate(err)
	}
	return updated.model(), nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	oid, err := objectID(parentID)
	if err != nil {
		return []models.User{}, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"parentId": oid, "role": models.RoleChild},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) LinkChild(ctx context.Context, parentID, childID string) error {
	parent, err := objectID(parentID)
	if err != nil {
		return err
	}
	child, err := objectID(childID)
	if err != nil {
		return err
	}
	res, err := s.users.UpdateByID(ctx, parent, bson.M{
		"$addToSet": bson.M{"children": child},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	_, err = s.users.UpdateByID(ctx, child, bson.M{"$set": bson.M{"parentId": parent}})
	return err
}

// AddSpent increments spent with $inc so concurrent purchases never lose updates.
func (s *Store) AddSpent(ctx context.Context, userID string, amount decimal.Decimal) error {
	oid, err := objectID(userID)
	if err != nil {
		return err
	}
	res, err := s.users.UpdateByID(ctx, oid, bson.M{
		"$inc": bson.M{"spent": toD128(amount)},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AddGoal(ctx context.Context, userID string, goal models.Goal) (models.Goal, error) {
	oid, err := objectID(userID)
	if err != nil {
		return models.Goal{}, err
	}
	doc := goalDoc{
		ID:            primitive.NewObjectID(),
		Name:          goal.Name,
		TargetAmount:  toD128(goal.TargetAmount),
		CurrentAmount: toD128(goal.CurrentAmount),
		Deadline:      goal.Deadline,
	}
	res, err := s.users.UpdateByID(ctx, oid, bson.M{"$push": bson.M{"goals": doc}})
	if err != nil {
		return models.Goal{}, err
	}
	if res.MatchedCount == 0 {
		return models.Goal{}, storage.ErrNotFound
	}
	return doc.model(), nil
}

func (s *Store) UpdateGoalProgress(ctx context.Context, userID, goalID string, amount decimal.Decimal) (models.Goal, error) {
	uid, err := objectID(userID)
	if err != nil {
		return models.Goal{}, err
	}
	gid, err := objectID(goalID)
	if err != nil {
		return models.Goal{}, err
	}
	var updated userDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": uid, "goals._id": gid},
		bson.M{"$inc": bson.M{"goals.$.currentAmount": toD128(amount)}},
		afterUpdate(),
	).Decode(&updated)
	if err != nil {
		return models.Goal{}, translate(err)
	}
	for _, g := range updated.Goals {
		if g.ID == gid {
			return g.model(), nil
		}
	}
	return models.Goal{}, storage.ErrNotFound
}
