package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 8
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the account could not be located.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates the email is already registered.
	ErrUserConflict = errors.New("user: conflict")
	// ErrUserUnauthorized indicates failed credentials. The message stays
	// generic so callers cannot distinguish unknown emails from bad passwords.
	ErrUserUnauthorized = errors.New("user: invalid credentials")
)

// TokenIssuer mints access and refresh tokens.
type TokenIssuer interface {
	Issue(userID string, email string, role domain.Role) (string, time.Time, error)
	IssueRefresh(userID string, email string) (string, time.Time, error)
	VerifyRefresh(token string) (userID string, email string, err error)
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// CartMerger folds a guest cart into a user cart after login.
type CartMerger interface {
	MergeGuestCart(ctx context.Context, guestID string, userID string) error
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Products    repositories.ProductRepository
	Tokens      TokenIssuer
	Passwords   PasswordHasher
	Carts       CartMerger
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	products  repositories.ProductRepository
	tokens    TokenIssuer
	passwords PasswordHasher
	carts     CartMerger
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	passwords := deps.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordHasher(0)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:     deps.Users,
		products:  deps.Products,
		tokens:    deps.Tokens,
		passwords: passwords,
		carts:     deps.Carts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (User, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: malformed email", ErrUserInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	hash, err := s.passwords.Hash(cmd.Password)
	if err != nil {
		return User{}, fmt.Errorf("user: hash password: %w", err)
	}

	now := s.clock()
	user := domain.User{
		ID:           userIDPrefix + s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "user.registered", map[string]any{"user": user.ID})
	return sanitizeUser(user), nil
}

// sanitizeUser strips credentials before a profile leaves the service.
func sanitizeUser(user domain.User) domain.User {
	user.PasswordHash = ""
	user.RefreshToken = ""
	return user
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || cmd.Password == "" {
		return LoginResult{}, ErrUserUnauthorized
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return LoginResult{}, ErrUserUnauthorized
		}
		return LoginResult{}, s.mapRepositoryError(err)
	}

	if err := s.passwords.Compare(user.PasswordHash, cmd.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return LoginResult{}, ErrUserUnauthorized
		}
		return LoginResult{}, fmt.Errorf("user: compare password: %w", err)
	}

	token, expires, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("user: issue token: %w", err)
	}

	// Each login rotates the stored refresh token, invalidating the
	// previous session's cookie.
	refresh, refreshExpires, err := s.tokens.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("user: issue refresh token: %w", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh, s.clock()); err != nil {
		return LoginResult{}, s.mapRepositoryError(err)
	}

	if guestID := strings.TrimSpace(cmd.GuestID); guestID != "" && s.carts != nil {
		if err := s.carts.MergeGuestCart(ctx, guestID, user.ID); err != nil {
			s.logger(ctx, "user.cart.merge.failed", map[string]any{
				"user":  user.ID,
				"error": err.Error(),
			})
		}
	}

	return LoginResult{
		User:             sanitizeUser(user),
		Token:            token,
		ExpiresAt:        expires,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token and rotates
// the refresh token itself. The token must both verify and match the one
// stored on the account, so a logout or later login revokes it.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return LoginResult{}, ErrUserUnauthorized
	}

	user, err := s.users.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return LoginResult{}, ErrUserUnauthorized
		}
		return LoginResult{}, s.mapRepositoryError(err)
	}

	userID, email, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil || userID != user.ID || email != user.Email {
		return LoginResult{}, ErrUserUnauthorized
	}

	token, expires, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("user: issue token: %w", err)
	}
	refresh, refreshExpires, err := s.tokens.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("user: issue refresh token: %w", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh, s.clock()); err != nil {
		return LoginResult{}, s.mapRepositoryError(err)
	}

	return LoginResult{
		User:             sanitizeUser(user),
		Token:            token,
		ExpiresAt:        expires,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// Logout revokes the session behind the refresh token. Unknown or empty
// tokens succeed silently so the endpoint stays idempotent.
func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	user, err := s.users.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return s.mapRepositoryError(err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, "", s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.logged_out", map[string]any{"user": user.ID})
	return nil
}

func (s *userService) Get(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name cannot be empty", ErrUserInvalidInput)
		}
		user.Name = name
	}
	if cmd.Addresses != nil {
		for _, address := range *cmd.Addresses {
			if err := address.Validate(); err != nil {
				return User{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, err)
			}
		}
		user.Addresses = *cmd.Addresses
	}
	user.UpdatedAt = s.clock()

	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) SetRole(ctx context.Context, cmd SetRoleCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if !domain.ValidRole(cmd.Role) {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, cmd.Role)
	}

	user, err := s.users.SetRole(ctx, userID, cmd.Role, s.clock())
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "user.role.changed", map[string]any{"user": user.ID, "role": string(cmd.Role)})
	return sanitizeUser(user), nil
}

func (s *userService) AddWishlist(ctx context.Context, userID string, productID string) (User, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return User{}, fmt.Errorf("%w: user id and product id are required", ErrUserInvalidInput)
	}

	if s.products != nil {
		if _, err := s.products.FindByID(ctx, productID); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return User{}, fmt.Errorf("%w: product %s does not exist", ErrUserInvalidInput, productID)
			}
			return User{}, s.mapRepositoryError(err)
		}
	}

	user, err := s.users.AddWishlist(ctx, userID, productID, s.clock())
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) RemoveWishlist(ctx context.Context, userID string, productID string) (User, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return User{}, fmt.Errorf("%w: user id and product id are required", ErrUserInvalidInput)
	}

	user, err := s.users.RemoveWishlist(ctx, userID, productID, s.clock())
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return sanitizeUser(user), nil
}

// ListWishlist resolves the wishlist to products. Entries whose product was
// removed from the catalog are skipped silently.
func (s *userService) ListWishlist(ctx context.Context, userID string) ([]Product, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Wishlist) == 0 || s.products == nil {
		return []Product{}, nil
	}

	found, err := s.products.FindByIDs(ctx, user.Wishlist)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	products := make([]Product, 0, len(user.Wishlist))
	for _, id := range user.Wishlist {
		if product, ok := found[id]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUserConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}

	return err
}
