package auth

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/db"
)

const tokenTTL = 24 * time.Hour

// JWTSecret resolves the HS256 signing key. The env var must be set in
// release mode; the fallback exists for local development only.
func JWTSecret() []byte {
	if s := os.Getenv("LIBRIS_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("libris-dev-secret")
}

type Service struct {
	store  UserStore
	secret []byte
}

func NewService(store UserStore, secret []byte) *Service {
	return &Service{store: store, secret: secret}
}

// Authenticate resolves an email/password pair to an identity.
// Unknown email and mismatched password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	if email == "" || password == "" {
		return nil, apperr.Unauthorized("email and password are required")
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	id := u.Identity()
	return &id, nil
}

// Login authenticates and issues a bearer token for subsequent calls.
func (s *Service) Login(ctx context.Context, email, password string) (*Identity, string, error) {
	id, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatInt(id.UserID, 10),
		"name":  id.Name,
		"email": id.Email,
		"role":  string(id.Role),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, "", err
	}
	return id, signed, nil
}

// ParseToken validates a bearer token and rebuilds the identity from its
// claims without a store round trip.
func (s *Service) ParseToken(tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.Unauthorized("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return nil, apperr.Unauthorized("invalid subject")
	}
	roleStr, _ := claims["role"].(string)
	role := Role(roleStr)
	if !role.Valid() {
		return nil, apperr.Unauthorized("invalid role claim")
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)

	return &Identity{UserID: userID, Name: name, Email: email, Role: role}, nil
}

// Register creates a user account. Role gating happens at the route level;
// the service only enforces input validity and email uniqueness.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (*Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, apperr.Invalid("name, email and password are required")
	}
	if !role.Valid() {
		return nil, apperr.Invalidf("unknown role %q", role)
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{Name: name, Email: email, PasswordHash: string(hash), Role: role}
	if err := s.store.Create(ctx, u); err != nil {
		if db.IsDuplicateKey(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, err
	}
	id := u.Identity()
	return &id, nil
}
