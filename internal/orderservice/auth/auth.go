// Package auth authenticates employees from bearer tokens and checks their
// branch assignments.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type actorKey struct{}

// Claims identifies the employee a token was issued to. The subject claim is
// accepted when employee_id is absent.
type Claims struct {
	EmployeeID string `json:"employee_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) actor() string {
	if c.EmployeeID != "" {
		return c.EmployeeID
	}
	return c.Subject
}

// Middleware guards the routes it wraps; public routes are mounted outside it.
type Middleware struct {
	secret []byte
	logger *logger.Logger
}

func NewMiddleware(secret string, logger *logger.Logger) *Middleware {
	return &Middleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// Handler rejects requests without a valid HS256 bearer token and stores the
// employee id in the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := logger.RequestID(r.Context())

		authHeader := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			m.logger.Warn(requestID, "authentication_failed", "Missing or malformed Authorization header")
			unauthorized(w, "missing bearer token")
			return
		}

		claims, err := m.parse(token)
		if err != nil {
			m.logger.Warn(requestID, "authentication_failed", fmt.Sprintf("Token rejected: %v", err))
			unauthorized(w, "invalid token")
			return
		}

		ctx := WithActor(r.Context(), claims.actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.actor() == "" {
		return nil, errors.New("token carries no employee id")
	}
	return claims, nil
}

// IssueToken signs a token for employeeID. Used by local tooling and tests.
func IssueToken(secret, employeeID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		EmployeeID: employeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the authenticated employee id, or "" outside an authenticated request.
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// Assignments answers whether an employee works at a branch.
type Assignments interface {
	IsAssigned(ctx context.Context, employeeID, branchID string) (bool, error)
}

// BranchGuard authorizes lifecycle operations against branch assignments.
type BranchGuard struct {
	assignments Assignments
}

func NewBranchGuard(assignments Assignments) *BranchGuard {
	return &BranchGuard{assignments: assignments}
}

func (g *BranchGuard) Authorize(ctx context.Context, actor, branchID string) error {
	if actor == "" {
		return fmt.Errorf("%w: anonymous caller", lifecycle.ErrUnauthorized)
	}
	ok, err := g.assignments.IsAssigned(ctx, actor, branchID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: employee %s is not assigned to branch %s", lifecycle.ErrUnauthorized, actor, branchID)
	}
	return nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
