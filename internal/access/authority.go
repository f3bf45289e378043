// Package access decides who may change roles and which users each actor can see.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/audit"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/franchise"
	"taxingsolutions-backend/internal/metrics"
	"taxingsolutions-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Authority struct {
	db          *gorm.DB
	registry    *franchise.Registry
	superAdmins map[string]struct{}
	log         *zap.Logger
}

// NewAuthority takes the super admin allowlist; entries are compared case-insensitively.
func NewAuthority(db *gorm.DB, registry *franchise.Registry, superAdminEmails []string, log *zap.Logger) *Authority {
	set := make(map[string]struct{}, len(superAdminEmails))
	for _, e := range superAdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return &Authority{db: db, registry: registry, superAdmins: set, log: log}
}

func (a *Authority) IsSuperAdminEmail(email string) bool {
	_, ok := a.superAdmins[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// RegistrationRole is the role a self-registering user ends up with. Allowlisted emails always get
// super_admin; everybody else may ask for user (the default) or franchise.
func (a *Authority) RegistrationRole(email string, requested models.UserRole) (models.UserRole, error) {
	if a.IsSuperAdminEmail(email) {
		return models.RoleSuperAdmin, nil
	}
	switch requested {
	case "", models.RoleUser:
		return models.RoleUser, nil
	case models.RoleFranchise:
		return models.RoleFranchise, nil
	case models.RoleAdmin, models.RoleSuperAdmin:
		return "", apperr.Validation("role cannot be chosen at registration")
	default:
		return "", apperr.Validation("invalid role")
	}
}

// assignable are the roles a super admin may hand out.
func assignable(r models.UserRole) bool {
	return r == models.RoleUser || r == models.RoleFranchise || r == models.RoleAdmin
}

// ChangeRole applies role to the target user. Promotion to franchise creates its franchise, demotion
// from franchise removes it, both in the same transaction as the role write.
func (a *Authority) ChangeRole(ctx context.Context, actor *models.User, targetID uint, role models.UserRole) (*models.User, error) {
	if err := auth.Require(actor, auth.SuperAdminOnly); err != nil {
		return nil, err
	}
	if !assignable(role) {
		return nil, apperr.Validation("role must be one of user, franchise, admin")
	}
	target, err := a.loadUser(ctx, a.db, targetID)
	if err != nil {
		return nil, err
	}
	if a.IsSuperAdminEmail(target.Email) {
		return nil, apperr.Forbidden("cannot change the role of a super admin")
	}

	var updated *models.User
	err = a.registry.Update(ctx, func(tx *franchise.Tx) error {
		user, err := a.loadUser(ctx, tx.DB(), targetID)
		if err != nil {
			return err
		}
		before := user.Role
		created, err := tx.SetRole(user, role)
		if err != nil {
			return err
		}
		if before != role {
			after := map[string]any{"role": role}
			if created != nil {
				after["referral_code"] = created.ReferralCode
			}
			if err := audit.WriteLog(tx.DB(), audit.LogOptions{
				Actor:       actor,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionRoleChange,
				Description: fmt.Sprintf("role %s -> %s", before, role),
				Before:      map[string]any{"role": before},
				After:       after,
			}); err != nil {
				return apperr.Internal("failed to audit role change", err)
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RoleChanges.WithLabelValues(string(role)).Inc()
	a.log.Info("role changed",
		zap.Uint("actor_id", actor.ID),
		zap.Uint("user_id", updated.ID),
		zap.String("role", string(role)))
	return updated, nil
}

// ListFranchises returns every franchise with owner identity.
func (a *Authority) ListFranchises(ctx context.Context, actor *models.User) ([]models.FranchiseWithOwner, error) {
	if err := auth.Require(actor, auth.SuperAdminOnly); err != nil {
		return nil, err
	}
	return a.registry.ListAll(ctx)
}

// CreateFranchise promotes (or creates) the account behind email. Allowlisted emails stay super admins.
func (a *Authority) CreateFranchise(ctx context.Context, actor *models.User, email string, name *string) (*franchise.Created, *models.FranchiseWithOwner, error) {
	if err := auth.Require(actor, auth.SuperAdminOnly); err != nil {
		return nil, nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil, apperr.Validation("email is required")
	}
	if a.IsSuperAdminEmail(email) {
		return nil, nil, apperr.Forbidden("cannot change the role of a super admin")
	}

	created, err := a.registry.CreateForEmail(ctx, email, name, func(tx *franchise.Tx, c *franchise.Created) error {
		if err := audit.WriteLog(tx.DB(), audit.LogOptions{
			Actor:       actor,
			EntityType:  "franchise",
			EntityID:    c.Franchise.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("franchise %s for %s", c.Franchise.ReferralCode, email),
			After:       c.Franchise,
		}); err != nil {
			return apperr.Internal("failed to audit franchise creation", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	view, err := a.registry.Get(ctx, created.Franchise.ID)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("franchise created",
		zap.Uint("actor_id", actor.ID),
		zap.Uint("franchise_id", created.Franchise.ID),
		zap.Bool("account_created", created.AccountCreated))
	return created, view, nil
}

// DeleteFranchise removes the franchise and demotes its owner. A missing franchise is NotFound.
func (a *Authority) DeleteFranchise(ctx context.Context, actor *models.User, id uint) error {
	if err := auth.Require(actor, auth.SuperAdminOnly); err != nil {
		return err
	}
	err := a.registry.Update(ctx, func(tx *franchise.Tx) error {
		f, err := tx.DeleteFranchise(id)
		if err != nil {
			return err
		}
		if f == nil {
			return apperr.NotFound("franchise not found")
		}
		if err := audit.WriteLog(tx.DB(), audit.LogOptions{
			Actor:       actor,
			EntityType:  "franchise",
			EntityID:    f.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("franchise %s deleted", f.ReferralCode),
			Before:      f,
		}); err != nil {
			return apperr.Internal("failed to audit franchise deletion", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.log.Info("franchise deleted", zap.Uint("actor_id", actor.ID), zap.Uint("franchise_id", id))
	return nil
}

// DeleteUser removes a user and any franchise it owns. Allowlisted super admins cannot be deleted.
func (a *Authority) DeleteUser(ctx context.Context, actor *models.User, id uint) error {
	if err := auth.Require(actor, auth.SuperAdminOnly); err != nil {
		return err
	}
	target, err := a.loadUser(ctx, a.db, id)
	if err != nil {
		return err
	}
	if a.IsSuperAdminEmail(target.Email) {
		return apperr.Forbidden("cannot delete a super admin")
	}

	return a.registry.Update(ctx, func(tx *franchise.Tx) error {
		user, err := a.loadUser(ctx, tx.DB(), id)
		if err != nil {
			return err
		}
		if err := tx.DeleteUser(user); err != nil {
			return err
		}
		if err := audit.WriteLog(tx.DB(), audit.LogOptions{
			Actor:       actor,
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("user %s deleted", user.Email),
			Before:      user,
		}); err != nil {
			return apperr.Internal("failed to audit user deletion", err)
		}
		return nil
	})
}

func (a *Authority) loadUser(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return &user, nil
}
