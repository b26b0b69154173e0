package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
)

const (
	userCollection       = "users"
	userEmailsCollection = "userEmails"
)

// UserRepository persists user accounts. Email uniqueness is enforced through
// an index collection keyed by the normalised address, created in the same
// transaction as the account document.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.BaseRepository[userDocument]
	emails   *pfirestore.BaseRepository[emailIndexDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
		emails:   pfirestore.NewBaseRepository[emailIndexDocument](provider, userEmailsCollection, nil, nil),
	}, nil
}

// Insert creates the account and claims its email atomically. A taken email
// surfaces as a conflict error.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return errors.New("user insert: id is required")
	}
	email := normaliseEmail(user.Email)
	if email == "" {
		return errors.New("user insert: email is required")
	}

	doc := fromDomainUser(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		emailRef, err := r.emails.DocumentRef(ctx, email)
		if err != nil {
			return err
		}
		userRef, err := r.users.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Create(emailRef, emailIndexDocument{UserID: id, CreatedAt: user.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(userRef, doc)
	})
	if err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

// Update overwrites the stored account. The email is immutable once claimed.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return errors.New("user update: id is required")
	}

	doc := fromDomainUser(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.users.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current userDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode user %s: %w", id, err)
		}
		doc.Email = current.Email
		doc.CreatedAt = current.CreatedAt
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("users.update", err)
	}
	return nil
}

// FindByID loads a user account.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.users == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.User{}, errors.New("user find: id is required")
	}

	doc, err := r.users.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail resolves the email through the index collection.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.emails == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	normalised := normaliseEmail(email)
	if normalised == "" {
		return domain.User{}, errors.New("user find by email: email is required")
	}

	index, err := r.emails.Get(ctx, normalised)
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, index.Data.UserID)
}

// SetRefreshToken replaces the stored refresh token. An empty token revokes
// the session.
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID string, token string, updatedAt time.Time) error {
	_, err := r.mutate(ctx, "users.setRefreshToken", userID, func(doc *userDocument) error {
		doc.RefreshToken = token
		doc.UpdatedAt = updatedAt.UTC()
		return nil
	})
	return err
}

// FindByRefreshToken resolves the account holding the given refresh token.
func (r *UserRepository) FindByRefreshToken(ctx context.Context, token string) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, errors.New("user find by refresh token: token is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.findByRefreshToken", err)
	}

	iter := client.Collection(userCollection).Query.
		Where("refreshToken", "==", token).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.User{}, pfirestore.WrapError("users.findByRefreshToken", status.Error(codes.NotFound, "no user for refresh token"))
	}
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.findByRefreshToken", err)
	}

	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// SetRole assigns the account's role.
func (r *UserRepository) SetRole(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.User, error) {
	return r.mutate(ctx, "users.setRole", userID, func(doc *userDocument) error {
		doc.Role = string(role)
		doc.UpdatedAt = updatedAt.UTC()
		return nil
	})
}

// AddWishlist adds the product to the user's wishlist, keeping it sorted and
// free of duplicates.
func (r *UserRepository) AddWishlist(ctx context.Context, userID string, productID string, updatedAt time.Time) (domain.User, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.User{}, errors.New("user wishlist: product id is required")
	}
	return r.mutate(ctx, "users.addWishlist", userID, func(doc *userDocument) error {
		for _, existing := range doc.Wishlist {
			if existing == productID {
				return nil
			}
		}
		doc.Wishlist = append(doc.Wishlist, productID)
		sort.Strings(doc.Wishlist)
		doc.UpdatedAt = updatedAt.UTC()
		return nil
	})
}

// RemoveWishlist drops the product from the wishlist if present.
func (r *UserRepository) RemoveWishlist(ctx context.Context, userID string, productID string, updatedAt time.Time) (domain.User, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.User{}, errors.New("user wishlist: product id is required")
	}
	return r.mutate(ctx, "users.removeWishlist", userID, func(doc *userDocument) error {
		filtered := doc.Wishlist[:0]
		for _, existing := range doc.Wishlist {
			if existing != productID {
				filtered = append(filtered, existing)
			}
		}
		doc.Wishlist = filtered
		doc.UpdatedAt = updatedAt.UTC()
		return nil
	})
}

func (r *UserRepository) mutate(ctx context.Context, op string, userID string, apply func(doc *userDocument) error) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.User{}, errors.New("user id is required")
	}

	var updated domain.User
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.users.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user %s: %w", id, err)
		}
		if err := apply(&doc); err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

// Document mapping ----------------------------------------------------------

type userDocument struct {
	Email        string            `firestore:"email"`
	Name         string            `firestore:"name"`
	PasswordHash string            `firestore:"passwordHash"`
	RefreshToken string            `firestore:"refreshToken,omitempty"`
	Role         string            `firestore:"role"`
	Wishlist     []string          `firestore:"wishlist"`
	Addresses    []addressDocument `firestore:"addresses"`
	CreatedAt    time.Time         `firestore:"createdAt"`
	UpdatedAt    time.Time         `firestore:"updatedAt"`
}

type emailIndexDocument struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainUser(user domain.User) userDocument {
	addresses := make([]addressDocument, len(user.Addresses))
	for i, address := range user.Addresses {
		addresses[i] = fromDomainAddress(address)
	}
	wishlist := make([]string, len(user.Wishlist))
	copy(wishlist, user.Wishlist)
	return userDocument{
		Email:        normaliseEmail(user.Email),
		Name:         strings.TrimSpace(user.Name),
		PasswordHash: user.PasswordHash,
		RefreshToken: user.RefreshToken,
		Role:         string(user.Role),
		Wishlist:     wishlist,
		Addresses:    addresses,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	addresses := make([]domain.Address, len(d.Addresses))
	for i, address := range d.Addresses {
		addresses[i] = address.toDomain()
	}
	return domain.User{
		ID:           id,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		RefreshToken: d.RefreshToken,
		Role:         domain.Role(d.Role),
		Wishlist:     d.Wishlist,
		Addresses:    addresses,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
