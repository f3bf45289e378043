// Package franchise owns franchise records and the user fields that mirror them.
//
// The Registry is the only writer of the franchises table and of users.role / users.franchise_code, so that
// "a user holds role franchise iff exactly one franchise row has its id" holds by construction. Other packages
// that need to write those fields run their unit of work through Registry.Update and use the Tx methods.
package franchise

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/metrics"
	"taxingsolutions-backend/internal/models"
	"taxingsolutions-backend/internal/referral"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxCodeAttempts bounds how often a unit of work is re-run after losing a referral code race.
const maxCodeAttempts = 5

// errCodeCollision marks an insert rejected by the referral_code unique index.
var errCodeCollision = errors.New("referral code collision")

type Registry struct {
	db     *gorm.DB
	codes  *referral.Generator
	hasher *auth.Hasher
	log    *zap.Logger
}

func NewRegistry(db *gorm.DB, codes *referral.Generator, hasher *auth.Hasher, log *zap.Logger) *Registry {
	codes.OnRedraw = metrics.ReferralCodeRedraws.Inc
	return &Registry{db: db, codes: codes, hasher: hasher, log: log}
}

// Update runs fn in a single transaction. When fn loses a referral code race the transaction is rolled
// back and fn runs again from scratch, so fn must not keep state between calls.
func (r *Registry) Update(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := r.run(ctx, fn)
		if !errors.Is(err, errCodeCollision) {
			return err
		}
		metrics.ReferralCodeCollisions.Inc()
		r.log.Warn("referral code collision, retrying", zap.Int("attempt", attempt))
		if attempt == maxCodeAttempts {
			return apperr.Conflict("could not allocate a unique referral code")
		}
	}
}

func (r *Registry) run(ctx context.Context, fn func(tx *Tx) error) error {
	tx := &Tx{ctx: ctx, codes: r.codes}
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx.db = db
		return fn(tx)
	})
	if err != nil {
		return err
	}
	if tx.created > 0 {
		metrics.FranchisesCreated.Add(float64(tx.created))
	}
	if tx.deleted > 0 {
		metrics.FranchisesDeleted.Add(float64(tx.deleted))
	}
	return nil
}

// CreateFranchise makes userID the owner of a new franchise under the given code.
// A taken code or an existing franchise for the user is a Conflict; the code is not redrawn.
func (r *Registry) CreateFranchise(ctx context.Context, userID uint, name, code string) (uint, error) {
	if !referral.Valid(code) {
		return 0, apperr.Validation("referral code must be 8 uppercase letters or digits")
	}

	var id uint
	err := r.run(ctx, func(tx *Tx) error {
		user, err := tx.user(userID)
		if err != nil {
			return err
		}
		if err := tx.ensureNoFranchise(user); err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = user.DisplayName()
		}
		f, err := tx.attach(user, name, code)
		if err != nil {
			return err
		}
		id = f.ID
		return nil
	})
	if errors.Is(err, errCodeCollision) {
		return 0, apperr.Conflict("referral code already in use")
	}
	return id, err
}

// Created is the outcome of CreateForEmail.
type Created struct {
	Franchise *models.Franchise
	Owner     *models.User
	// AccountCreated is true when the owner did not exist before this call.
	AccountCreated bool
	// TemporaryPassword is the plaintext credential of a created account. Empty otherwise.
	TemporaryPassword string
}

// CreateForEmail promotes the user with email to franchise, creating the account with a temporary
// password first when nobody has registered that email. then, when non-nil, runs in the same transaction.
func (r *Registry) CreateForEmail(ctx context.Context, email string, name *string, then func(tx *Tx, c *Created) error) (*Created, error) {
	// Hashed before the transaction opens; unused when the user already exists.
	tempPassword := auth.TemporaryPassword()
	hash, err := r.hasher.Hash(tempPassword)
	if err != nil {
		return nil, apperr.Internal("failed to hash temporary password", err)
	}

	var out *Created
	err = r.Update(ctx, func(tx *Tx) error {
		created, err := tx.CreateForEmail(email, name, hash)
		if err != nil {
			return err
		}
		if created.AccountCreated {
			created.TemporaryPassword = tempPassword
		}
		if then != nil {
			if err := then(tx, created); err != nil {
				return err
			}
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) LookupByCode(ctx context.Context, code string) (*models.Franchise, error) {
	return lookup(r.db.WithContext(ctx), "referral_code = ?", code)
}

func (r *Registry) LookupByUser(ctx context.Context, userID uint) (*models.Franchise, error) {
	return lookup(r.db.WithContext(ctx), "user_id = ?", userID)
}

// ListAll returns every franchise with its owner's identity, ordered by id.
func (r *Registry) ListAll(ctx context.Context) ([]models.FranchiseWithOwner, error) {
	db := r.db.WithContext(ctx)

	var franchises []models.Franchise
	if err := db.Order("id ASC").Find(&franchises).Error; err != nil {
		return nil, apperr.Internal("failed to list franchises", err)
	}
	if len(franchises) == 0 {
		return []models.FranchiseWithOwner{}, nil
	}

	ids := make([]uint, 0, len(franchises))
	for _, f := range franchises {
		ids = append(ids, f.UserID)
	}
	var owners []models.User
	if err := db.Where("id IN ?", ids).Find(&owners).Error; err != nil {
		return nil, apperr.Internal("failed to load franchise owners", err)
	}
	byID := make(map[uint]models.User, len(owners))
	for _, u := range owners {
		byID[u.ID] = u
	}

	out := make([]models.FranchiseWithOwner, 0, len(franchises))
	for _, f := range franchises {
		row := models.FranchiseWithOwner{Franchise: f}
		if u, ok := byID[f.UserID]; ok {
			row.FirstName, row.LastName, row.Email = u.FirstName, u.LastName, u.Email
		}
		out = append(out, row)
	}
	return out, nil
}

// Get returns one franchise with owner identity.
func (r *Registry) Get(ctx context.Context, id uint) (*models.FranchiseWithOwner, error) {
	db := r.db.WithContext(ctx)
	f, err := lookup(db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.NotFound("franchise not found")
	}
	row := &models.FranchiseWithOwner{Franchise: *f}
	var owner models.User
	if err := db.First(&owner, f.UserID).Error; err == nil {
		row.FirstName, row.LastName, row.Email = owner.FirstName, owner.LastName, owner.Email
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("failed to load franchise owner", err)
	}
	return row, nil
}

// Delete removes the franchise and demotes its owner atomically. It reports false when no such franchise exists.
func (r *Registry) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := r.run(ctx, func(tx *Tx) error {
		f, err := tx.DeleteFranchise(id)
		deleted = f != nil
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func lookup(db *gorm.DB, query string, arg any) (*models.Franchise, error) {
	var f models.Franchise
	err := db.Where(query, arg).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to look up franchise", fmt.Errorf("%s: %w", query, err))
	}
	return &f, nil
}
