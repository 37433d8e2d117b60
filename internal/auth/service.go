package auth

import (
	"context"
	"time"

	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	secret []byte
	ttl    time.Duration
	db     db.Querier
}

// Claims carries the caller's email as the JWT subject.
type Claims struct {
	jwt.RegisteredClaims
}

var (
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
	signTokenFn       = (*Service).signToken
)

func NewService(secret string, ttl time.Duration, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		db:     db,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (users.User, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return users.User{}, apperr.Validation("email and password required")
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1)`, email).Scan(&exists); err != nil {
		return users.User{}, err
	}
	if exists {
		return users.User{}, apperr.Conflict("email already registered")
	}

	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return users.User{}, err
	}

	user := users.User{
		ID:    uuid.NewString(),
		Email: email,
	}
	if req.Name != "" {
		name := req.Name
		user.Name = &name
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, user.ID, user.Email, string(hash), user.Name)
	if err := row.Scan(&user.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return users.User{}, apperr.Conflict("email already registered")
		}
		return users.User{}, err
	}
	return user, nil
}

// Authenticate checks the credentials and issues an access token. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (TokenResponse, error) {
	email = users.NormalizeEmail(email)
	var hash string
	err := s.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE email=$1`, email).Scan(&hash)
	if err != nil {
		if db.IsNoRows(err) {
			return TokenResponse{}, apperr.Unauthorized("incorrect email or password")
		}
		return TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return TokenResponse{}, apperr.Unauthorized("incorrect email or password")
	}

	token, err := signTokenFn(s, email, s.ttl)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// ValidateAccessToken returns the email the token was issued for.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) signToken(email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperr.Unauthorized("could not validate credentials")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, apperr.Unauthorized("could not validate credentials")
	}
	return claims, nil
}
