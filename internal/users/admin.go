package users

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// CreateInput is an account created by an administrator.
type CreateInput struct {
	RegisterInput
	Role string `json:"role"`
}

// Create makes an account with any role.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	role := models.RoleUser
	if in.Role != "" {
		r, ok := models.ParseRole(in.Role)
		if !ok {
			return nil, apperr.Validation("invalid role")
		}
		role = r
	}
	return s.create(ctx, in.RegisterInput, role)
}

// nonAdmins lists customers and supervisors.
func (s *Service) nonAdmins(ctx context.Context) ([]models.User, error) {
	var out []models.User
	for _, role := range []models.Role{models.RoleUser, models.RoleSupervisor} {
		list, err := s.store.UsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	if out == nil {
		out = []models.User{}
	}
	return out, nil
}

// List returns every account except administrators.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.nonAdmins(ctx)
}

// Search matches query against name, last name and email, ignoring case.
func (s *Service) Search(ctx context.Context, query string) ([]models.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, apperr.Validation("query is required")
	}
	all, err := s.nonAdmins(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.User{}
	for _, u := range all {
		if strings.Contains(strings.ToLower(u.Name), q) ||
			strings.Contains(strings.ToLower(u.Lastname), q) ||
			strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
	}
	return out, nil
}

// WithContracts is a customer and their contracts.
type WithContracts struct {
	models.User
	ContractList []models.Contract `json:"contractList"`
}

// ListWithContracts returns every customer with their contracts.
func (s *Service) ListWithContracts(ctx context.Context) ([]WithContracts, error) {
	return s.withContracts(ctx, false, "")
}

// ListWithContractsOnly returns the customers holding at least one
// contract, optionally of policyType only.
func (s *Service) ListWithContractsOnly(ctx context.Context, policyType string) ([]WithContracts, error) {
	return s.withContracts(ctx, true, policyType)
}

func (s *Service) withContracts(ctx context.Context, only bool, policyType string) ([]WithContracts, error) {
	var filter models.PolicyType
	if policyType != "" {
		p, ok := models.ParsePolicyType(policyType)
		if !ok {
			return nil, apperr.Validation("invalid policyType")
		}
		filter = p
	}
	customers, err := s.store.UsersByRole(ctx, models.RoleUser)
	if err != nil {
		return nil, err
	}
	out := []WithContracts{}
	for _, u := range customers {
		contracts, err := s.store.ContractsByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if filter != "" {
			kept := contracts[:0]
			for _, c := range contracts {
				if c.PolicyType == filter {
					kept = append(kept, c)
				}
			}
			contracts = kept
		}
		if only && len(contracts) == 0 {
			continue
		}
		out = append(out, WithContracts{User: u, ContractList: contracts})
	}
	return out, nil
}

// AdminUpdateInput is an administrator's edit of an account.
type AdminUpdateInput struct {
	ProfileInput
	Role     string `json:"role"`
	Password string `json:"password"`
}

// Update edits another account. Administrators cannot edit themselves here.
func (s *Service) Update(ctx context.Context, actorID, id string, in AdminUpdateInput) (*models.User, error) {
	if actorID == id {
		return nil, apperr.Forbidden("administrators cannot modify their own account here")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(u); err != nil {
		return nil, err
	}
	if in.Role != "" {
		r, ok := models.ParseRole(in.Role)
		if !ok {
			return nil, apperr.Validation("invalid role")
		}
		u.Role = r
	}
	if in.Password != "" {
		if err := s.setPassword(u, in.Password); err != nil {
			return nil, err
		}
	}
	u.UpdatedAt = models.Stamp(s.now())
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user updated by admin", zap.String("user_id", id), zap.String("admin_id", actorID))
	return u, nil
}

// Delete removes another account.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return apperr.Forbidden("administrators cannot delete their own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("admin_id", actorID))
	return nil
}
