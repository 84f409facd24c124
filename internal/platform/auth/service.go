package auth

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/db"
)

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"

	DefaultTokenTTL = 24 * time.Hour
)

type Service struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	cost   int
}

func NewService(conn *db.DB, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		store:  NewStore(conn),
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
	}
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login はパスワードを照合して HS256 のトークンを発行する。
// 失敗理由は外に出さない（ID 不在も無効化も同じ扱い）。
func (s *Service) Login(ctx context.Context, id, password string) (Token, error) {
	if len(s.secret) == 0 {
		return Token{}, apierr.ErrConflict("authentication is disabled")
	}
	op, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return Token{}, errAuthFailed
		}
		return Token{}, err
	}
	if op.IsDisabled {
		return Token{}, errAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return Token{}, errAuthFailed
	}

	exp := s.now().Add(s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  op.OperatorID,
		"role": op.Role,
		"exp":  exp.Unix(),
	}).SignedString(s.secret)
	if err != nil {
		return Token{}, err
	}
	log.Printf("[INFO] operator %s logged in", op.OperatorID)
	return Token{Token: signed, ExpiresAt: exp}, nil
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return apierr.ErrInvalid("id must be 1..64 chars")
	}
	if len(password) < 8 {
		return apierr.ErrInvalid("password must be at least 8 chars")
	}
	switch role {
	case "":
		role = RoleOperator
	case RoleOperator, RoleAdmin:
	default:
		return apierr.ErrInvalid("role must be operator or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return apierr.ErrInvalid("password: " + err.Error())
	}
	if err := s.store.Create(ctx, &Operator{
		OperatorID:   id,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	}); err != nil {
		return err
	}
	log.Printf("[INFO] operator registered: %s (%s)", id, role)
	return nil
}

func (s *Service) Disable(ctx context.Context, id string) error {
	return s.store.SetDisabled(ctx, id, true)
}

var errAuthFailed = &apierr.APIError{Code: apierr.CodeUnauthenticated, Message: "invalid id or password"}
