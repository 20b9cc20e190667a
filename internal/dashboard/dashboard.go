// Package dashboard computes the staff dashboard figures and exports.
package dashboard

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

// Store is the read-only persistence the dashboard needs.
type Store interface {
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ContractsByStatus(ctx context.Context, status models.ContractStatus, r store.EndRange) ([]models.Contract, error)
	ClaimsByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error)
}

// Service reads dashboard data.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// New returns a dashboard service.
func New(st Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log, now: time.Now}
}

// Users returns every account except administrators.
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	out := []models.User{}
	for _, role := range []models.Role{models.RoleUser, models.RoleSupervisor} {
		list, err := s.store.UsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// Contracts returns every contract, oldest first.
func (s *Service) Contracts(ctx context.Context) ([]models.Contract, error) {
	out := []models.Contract{}
	for _, st := range models.ContractStatuses {
		list, err := s.store.ContractsByStatus(ctx, st, store.EndRange{})
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Claims returns every claim, oldest first.
func (s *Service) Claims(ctx context.Context) ([]models.Claim, error) {
	out := []models.Claim{}
	for _, st := range models.ClaimStatuses {
		list, err := s.store.ClaimsByStatus(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats are the headline figures. "LastMonth" is the previous calendar
// month; growth compares it with the month before.
type Stats struct {
	TotalUsersAllTime       int     `json:"totalUsersAllTime"`
	TotalUsersLastMonth     int     `json:"totalUsersLastMonth"`
	TotalClaimsAllTime      int     `json:"totalClaimsAllTime"`
	TotalClaimsLastMonth    int     `json:"totalClaimsLastMonth"`
	TotalContractsAllTime   int     `json:"totalContractsAllTime"`
	TotalContractsLastMonth int     `json:"totalContractsLastMonth"`
	PendingClaims           int     `json:"pendingClaims"`
	RevenueAllTime          float64 `json:"revenueAllTime"`
	RevenueLastMonth        float64 `json:"revenueLastMonth"`
	TotalUsersGrowth        float64 `json:"totalUsersGrowth"`
	TotalClaimsGrowth       float64 `json:"totalClaimsGrowth"`
	TotalContractsGrowth    float64 `json:"totalContractsGrowth"`
	RevenueGrowth           float64 `json:"revenueGrowth"`
}

// window is a half-open calendar month.
type window struct{ from, to time.Time }

func (w window) has(t time.Time) bool { return !t.Before(w.from) && t.Before(w.to) }

func months(now time.Time) (last, before window) {
	cur := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last = window{cur.AddDate(0, -1, 0), cur}
	before = window{cur.AddDate(0, -2, 0), last.from}
	return last, before
}

// Growth is the percentage change from prev to cur, rounded to two
// decimals. A zero baseline yields 100 when cur is positive.
func Growth(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return math.Round((cur-prev)/prev*100*100) / 100
}

// Stats computes the dashboard figures relative to the current month.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	last, before := months(s.now().UTC())

	users, err := s.Users(ctx)
	if err != nil {
		return st, err
	}
	var usersBefore int
	for _, u := range users {
		st.TotalUsersAllTime++
		switch {
		case last.has(u.CreatedAt):
			st.TotalUsersLastMonth++
		case before.has(u.CreatedAt):
			usersBefore++
		}
	}

	claims, err := s.Claims(ctx)
	if err != nil {
		return st, err
	}
	var claimsBefore int
	for _, c := range claims {
		st.TotalClaimsAllTime++
		if c.Status == models.ClaimPending {
			st.PendingClaims++
		}
		switch {
		case last.has(c.CreatedAt):
			st.TotalClaimsLastMonth++
		case before.has(c.CreatedAt):
			claimsBefore++
		}
	}

	contracts, err := s.Contracts(ctx)
	if err != nil {
		return st, err
	}
	var contractsBefore int
	var revenueBefore float64
	for _, c := range contracts {
		st.TotalContractsAllTime++
		active := c.Status == models.ContractActive
		if active {
			st.RevenueAllTime += c.PremiumAmount
		}
		switch {
		case last.has(c.StartDate):
			st.TotalContractsLastMonth++
			if active {
				st.RevenueLastMonth += c.PremiumAmount
			}
		case before.has(c.StartDate):
			contractsBefore++
			if active {
				revenueBefore += c.PremiumAmount
			}
		}
	}
	st.RevenueAllTime = models.RoundCents(st.RevenueAllTime)
	st.RevenueLastMonth = models.RoundCents(st.RevenueLastMonth)

	st.TotalUsersGrowth = Growth(float64(st.TotalUsersLastMonth), float64(usersBefore))
	st.TotalClaimsGrowth = Growth(float64(st.TotalClaimsLastMonth), float64(claimsBefore))
	st.TotalContractsGrowth = Growth(float64(st.TotalContractsLastMonth), float64(contractsBefore))
	st.RevenueGrowth = Growth(st.RevenueLastMonth, revenueBefore)
	return st, nil
}

// Point is one chart value.
type Point struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// PolicyTypeDistribution counts contracts per policy type. Types without
// contracts are left out.
func (s *Service) PolicyTypeDistribution(ctx context.Context) ([]Point, error) {
	contracts, err := s.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[models.PolicyType]int{}
	for _, c := range contracts {
		counts[c.PolicyType]++
	}
	out := []Point{}
	for _, p := range models.PolicyTypes {
		if n := counts[p]; n > 0 {
			out = append(out, Point{Name: string(p), Value: n})
		}
	}
	return out, nil
}

var monthNames = [12]string{"Jan", "Fév", "Mar", "Avr", "Mai", "Juin", "Juil", "Août", "Sep", "Oct", "Nov", "Déc"}

// ContractActivityByMonth counts contracts by start month, all years
// together, January first.
func (s *Service) ContractActivityByMonth(ctx context.Context) ([]Point, error) {
	contracts, err := s.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	var counts [12]int
	for _, c := range contracts {
		counts[c.StartDate.UTC().Month()-1]++
	}
	out := make([]Point, 12)
	for i, name := range monthNames {
		out[i] = Point{Name: name, Value: counts[i]}
	}
	return out, nil
}
