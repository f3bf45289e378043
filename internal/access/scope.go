package access

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Scope describes which referral-tagged rows an actor may read.
type Scope struct {
	// All is true for super admins.
	All bool
	// Code is the actor's own franchise code when All is false.
	Code string
}

// ScopeFor computes the read scope of actor. Plain users and admin-tier actors without a franchise
// code get Forbidden.
func ScopeFor(actor *models.User) (Scope, error) {
	if actor == nil {
		return Scope{}, apperr.Unauthenticated("authentication required")
	}
	switch {
	case actor.Role == models.RoleSuperAdmin:
		return Scope{All: true}, nil
	case actor.Role.AdminTier():
		if actor.FranchiseCode == nil || *actor.FranchiseCode == "" {
			return Scope{}, apperr.Forbidden("no franchise association found")
		}
		return Scope{Code: *actor.FranchiseCode}, nil
	default:
		return Scope{}, apperr.Forbidden("admin access required")
	}
}

// Apply restricts q to rows whose column equals the scope's code.
func (s Scope) Apply(q *gorm.DB, column string) *gorm.DB {
	if s.All {
		return q
	}
	return q.Where(column+" = ?", s.Code)
}

// Allows reports whether a row tagged with code is inside the scope.
func (s Scope) Allows(code *string) bool {
	return s.All || (code != nil && *code == s.Code)
}

// VisibleUsers lists every user for super admins and the referred users of the actor's franchise otherwise.
func (a *Authority) VisibleUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	scope, err := ScopeFor(actor)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := scope.Apply(a.db.WithContext(ctx), "referral_code").Order("id ASC").Find(&users).Error; err != nil {
		return nil, apperr.Internal("failed to list users", err)
	}
	return users, nil
}

// VisibleUser returns one user if it is inside the actor's scope.
func (a *Authority) VisibleUser(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	scope, err := ScopeFor(actor)
	if err != nil {
		return nil, err
	}
	user, err := a.loadUser(ctx, a.db, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(user.ReferralCode) {
		return nil, apperr.Forbidden("user is outside your franchise")
	}
	return user, nil
}

var exportHeader = []string{
	"ID", "First Name", "Last Name", "Email", "Company", "Phone",
	"Role", "Franchise Code", "Referral Code", "Created At",
}

func exportRecord(u *models.User) []string {
	return []string{
		strconv.FormatUint(uint64(u.ID), 10),
		u.FirstName,
		u.LastName,
		u.Email,
		u.Company,
		u.Phone,
		string(u.Role),
		deref(u.FranchiseCode),
		deref(u.ReferralCode),
		u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ExportUsersCSV writes the actor's visible users as CSV.
func (a *Authority) ExportUsersCSV(ctx context.Context, actor *models.User, w io.Writer) error {
	users, err := a.VisibleUsers(ctx, actor)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return apperr.Internal("failed to write export", err)
	}
	for i := range users {
		if err := cw.Write(exportRecord(&users[i])); err != nil {
			return apperr.Internal("failed to write export", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.Internal("failed to write export", err)
	}
	return nil
}

const exportSheet = "Users"

// ExportUsersXLSX writes the same rows as ExportUsersCSV into a single sheet workbook.
func (a *Authority) ExportUsersXLSX(ctx context.Context, actor *models.User, w io.Writer) error {
	users, err := a.VisibleUsers(ctx, actor)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return apperr.Internal("failed to build workbook", err)
	}

	writeRow := func(row int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(exportSheet, cell, &cells)
	}

	if err := writeRow(1, exportHeader); err != nil {
		return apperr.Internal("failed to build workbook", err)
	}
	for i := range users {
		if err := writeRow(i+2, exportRecord(&users[i])); err != nil {
			return apperr.Internal("failed to build workbook", err)
		}
	}

	if err := f.Write(w); err != nil {
		return apperr.Internal("failed to write workbook", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
