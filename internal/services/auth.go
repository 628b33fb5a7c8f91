package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

const minPasswordLen = 8

var (
	errInvalidCredentials = apierr.Unauthorized("invalid_credentials", errors.New("invalid email or password"))
	errInvalidRefresh     = apierr.Unauthorized("invalid_refresh_token", errors.New("refresh token is invalid or expired"))
)

type JWTClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*types.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	// SetContextFromToken verifies an access token and stores the caller in ctx.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	jwtSecretKey  []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:            db,
		log:           baseLog.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		jwtSecretKey:  []byte(jwtSecretKey),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (as *authService) GetAccessTTL() time.Duration { return as.accessTTL }

func (as *authService) Register(ctx context.Context, in RegisterInput) (*types.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apierr.BadRequest("invalid_email", errors.New("a valid email is required"))
	}
	if len(in.Password) < minPasswordLen {
		return nil, apierr.BadRequest("weak_password", fmt.Errorf("password must be at least %d characters", minPasswordLen))
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, apierr.BadRequest("invalid_name", errors.New("first_name and last_name are required"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &types.User{
		Email:     email,
		Password:  string(hash),
		FirstName: first,
		LastName:  last,
	}

	exists, err := as.userRepo.EmailExists(dbctx.Context{Ctx: ctx}, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errEmailTaken
	}
	if _, err := as.userRepo.Create(dbctx.Context{Ctx: ctx}, []*types.User{u}); err != nil {
		if isUniqueViolation(err) {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	as.log.Info("User registered", "user_id", u.ID)
	return u, nil
}

var errEmailTaken = apierr.Conflict("email_taken", errors.New("email already registered"))

// isUniqueViolation catches the race between EmailExists and the insert.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func (as *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := as.userRepo.GetByEmail(dbctx.Context{Ctx: ctx}, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	if u.Suspended {
		return nil, apierr.Forbidden("account_suspended", errors.New("account suspended"))
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := as.userTokenRepo.DeleteExpired(dbc, as.now()); err != nil {
			return fmt.Errorf("prune tokens: %w", err)
		}
		p, err := as.issue(dbc, u)
		pair = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh rotates a refresh token: the old one is deleted and a new pair issued.
func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, errInvalidRefresh
	}
	var pair *TokenPair
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		tok, err := as.userTokenRepo.GetByRefreshToken(dbc, refreshToken)
		if err != nil {
			return err
		}
		if tok == nil {
			return errInvalidRefresh
		}
		if err := as.userTokenRepo.DeleteByRefreshTokens(dbc, []string{refreshToken}); err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
		if !tok.ExpiresAt.After(as.now()) {
			return errInvalidRefresh
		}
		u, err := as.userRepo.GetByID(dbc, tok.UserID)
		if err != nil {
			return err
		}
		if u == nil || u.Suspended {
			return errInvalidRefresh
		}
		p, err := as.issue(dbc, u)
		pair = p
		return err
	})
	if err != nil {
		// an expired token is deleted even though the refresh fails
		if errors.Is(err, errInvalidRefresh) {
			_ = as.userTokenRepo.DeleteByRefreshTokens(dbctx.Context{Ctx: ctx}, []string{refreshToken})
		}
		return nil, err
	}
	return pair, nil
}

func (as *authService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken != "" {
		return as.userTokenRepo.DeleteByRefreshTokens(dbctx.Context{Ctx: ctx}, []string{refreshToken})
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apierr.Unauthorized("unauthorized", errors.New("not authenticated"))
	}
	return as.userTokenRepo.DeleteByUserIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{rd.UserID})
}

func (as *authService) issue(dbc dbctx.Context, u *types.User) (*TokenPair, error) {
	now := as.now()
	access, err := as.generateAccessToken(u, now)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	ut := &types.UserToken{
		UserID:       u.ID,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    now.Add(as.refreshTTL),
	}
	if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{ut}); err != nil {
		as.log.Warn("Create user token failed", "error", err)
		return nil, fmt.Errorf("create user token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: ut.RefreshToken, ExpiresAt: now.Add(as.accessTTL)}, nil
}

func (as *authService) generateAccessToken(u *types.User, now time.Time) (string, error) {
	claims := JWTClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.jwtSecretKey)
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.Unauthorized("unauthorized", errors.New("missing token"))
	}
	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil || !parsed.Valid {
		return ctx, apierr.Unauthorized("invalid_token", fmt.Errorf("parse token: %w", err))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Unauthorized("invalid_token", fmt.Errorf("invalid subject: %w", err))
	}
	u, err := as.userRepo.GetByID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return ctx, err
	}
	if u == nil {
		return ctx, apierr.Unauthorized("invalid_token", errors.New("user no longer exists"))
	}
	if u.Suspended {
		return ctx, apierr.Forbidden("account_suspended", errors.New("account suspended"))
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Role:        u.Role,
	}), nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
