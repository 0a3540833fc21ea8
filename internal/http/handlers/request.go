package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
)

const maxBodyBytes = 10 << 10

const maxDescriptionLength = 500

// moneyPlaces matches the NUMERIC(14,2) money columns.
const moneyPlaces = 2

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// decodeJSON reads a size-limited JSON body into dst and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

// internalError logs err against the request and answers 500 with message.
func internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	zap.L().Error(message,
		zap.String("request_id", middleware.RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respond.Error(w, http.StatusInternalServerError, message)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= 2
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// childBirthDate validates that dob belongs to someone aged 6 to 17 at now.
func childBirthDate(dob string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(dob) == "" {
		return time.Time{}, errors.New("date of birth is required for child accounts")
	}
	born, err := parseDate(dob)
	if err != nil {
		return time.Time{}, errors.New("date of birth must be a valid date")
	}
	age := ageAt(born, now)
	if age < 6 || age > 17 {
		return time.Time{}, errors.New("child must be between 6 and 17 years old")
	}
	return born, nil
}

func ageAt(born, now time.Time) int {
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age
}

// queryPoint reads lat, lng and distance (meters) from the query string.
func queryPoint(r *http.Request, defaultDistance float64) (models.Point, float64, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lng") == "" {
		return models.Point{}, 0, errors.New("lat and lng query parameters are required")
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return models.Point{}, 0, fmt.Errorf("invalid lat %q", q.Get("lat"))
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return models.Point{}, 0, fmt.Errorf("invalid lng %q", q.Get("lng"))
	}
	p := models.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return models.Point{}, 0, errors.New("coordinates out of range")
	}
	distance := defaultDistance
	if raw := q.Get("distance"); raw != "" {
		distance, err = strconv.ParseFloat(raw, 64)
		if err != nil || distance <= 0 {
			return models.Point{}, 0, fmt.Errorf("invalid distance %q", raw)
		}
	}
	return p, distance, nil
}

// sessionUser returns the authenticated user; routes using it are wrapped by the authenticator.
func sessionUser(r *http.Request) models.User {
	user, _ := middleware.CurrentUser(r.Context())
	return user
}

// canView reports whether viewer may read target's data: self, own parent or own child.
func canView(viewer, target models.User) bool {
	return viewer.ID == target.ID ||
		(viewer.ParentID != "" && viewer.ParentID == target.ID) ||
		(target.ParentID != "" && target.ParentID == viewer.ID)
}

// canManage reports whether viewer acts for target: self or target's parent.
func canManage(viewer, target models.User) bool {
	return viewer.ID == target.ID || (target.ParentID != "" && target.ParentID == viewer.ID)
}

// wholeCents reports whether every amount fits in two decimal places.
func wholeCents(amounts ...decimal.Decimal) bool {
	for _, a := range amounts {
		if !a.Equal(a.Truncate(moneyPlaces)) {
			return false
		}
	}
	return true
}
