package dashboard

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/memstore"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	st  *memstore.Store
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	svc := New(st, zap.NewNop())
	svc.now = func() time.Time { return day("2025-06-15") }
	return &fixture{st: st, svc: svc}
}

func (f *fixture) user(t *testing.T, role models.Role, created string) *models.User {
	t.Helper()
	u := &models.User{ID: models.NewID(), Name: "Jean", Lastname: "Valjean", Email: models.NewID() + "@example.fr", Role: role, CreatedAt: day(created)}
	require.NoError(t, f.st.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) contract(t *testing.T, owner string, p models.PolicyType, status models.ContractStatus, start string, premium float64) *models.Contract {
	t.Helper()
	c := &models.Contract{
		ID:            models.NewID(),
		UserID:        owner,
		PolicyType:    p,
		PolicyNumber:  "POL-2025-" + models.NewID()[18:],
		StartDate:     day(start),
		EndDate:       day(start).AddDate(1, 0, 0),
		PremiumAmount: premium,
		Status:        status,
	}
	require.NoError(t, f.st.CreateContract(context.Background(), c))
	return c
}

func (f *fixture) claim(t *testing.T, c *models.Contract, status models.ClaimStatus, created string) {
	t.Helper()
	cl := &models.Claim{ID: models.NewID(), UserID: c.UserID, ContractID: c.ID, Status: status, CreatedAt: day(created)}
	require.NoError(t, f.st.CreateClaim(context.Background(), cl))
}

func TestGrowth(t *testing.T) {
	assert.Equal(t, 100.0, Growth(3, 0))
	assert.Equal(t, 0.0, Growth(0, 0))
	assert.Equal(t, -50.0, Growth(1, 2))
	assert.Equal(t, 33.33, Growth(4, 3))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.user(t, models.RoleAdmin, "2025-05-10")
	may := f.user(t, models.RoleUser, "2025-05-31")
	april := f.user(t, models.RoleUser, "2025-04-01")
	f.user(t, models.RoleSupervisor, "2025-04-20")
	f.user(t, models.RoleUser, "2025-06-01")

	c1 := f.contract(t, may.ID, models.PolicyAuto, models.ContractActive, "2025-05-02", 300)
	f.contract(t, may.ID, models.PolicyHome, models.ContractExpired, "2025-05-20", 1000)
	f.contract(t, april.ID, models.PolicyAuto, models.ContractActive, "2025-04-15", 200)
	f.contract(t, april.ID, models.PolicyTravel, models.ContractActive, "2024-01-01", 50.5)

	f.claim(t, c1, models.ClaimPending, "2025-05-05")
	f.claim(t, c1, models.ClaimApproved, "2025-05-06")
	f.claim(t, c1, models.ClaimPending, "2025-06-02")

	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalUsersAllTime)
	assert.Equal(t, 1, st.TotalUsersLastMonth)
	assert.Equal(t, -50.0, st.TotalUsersGrowth)

	assert.Equal(t, 3, st.TotalClaimsAllTime)
	assert.Equal(t, 2, st.TotalClaimsLastMonth)
	assert.Equal(t, 100.0, st.TotalClaimsGrowth)
	assert.Equal(t, 2, st.PendingClaims)

	assert.Equal(t, 4, st.TotalContractsAllTime)
	assert.Equal(t, 2, st.TotalContractsLastMonth)
	assert.Equal(t, 100.0, st.TotalContractsGrowth)
	assert.Equal(t, 550.5, st.RevenueAllTime)
	assert.Equal(t, 300.0, st.RevenueLastMonth)
	assert.Equal(t, 50.0, st.RevenueGrowth)
}

func TestCharts(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, models.RoleUser, "2025-01-01")
	f.contract(t, u.ID, models.PolicyAuto, models.ContractActive, "2025-01-10", 100)
	f.contract(t, u.ID, models.PolicyAuto, models.ContractActive, "2024-01-20", 100)
	f.contract(t, u.ID, models.PolicyHealth, models.ContractExpired, "2025-12-01", 100)

	dist, err := f.svc.PolicyTypeDistribution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Point{{Name: "health", Value: 1}, {Name: "auto", Value: 2}}, dist)

	act, err := f.svc.ContractActivityByMonth(context.Background())
	require.NoError(t, err)
	require.Len(t, act, 12)
	assert.Equal(t, Point{Name: "Jan", Value: 2}, act[0])
	assert.Equal(t, Point{Name: "Déc", Value: 1}, act[11])
	assert.Equal(t, 0, act[5].Value)
}

func TestExportContracts(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, models.RoleUser, "2025-01-01")
	c := f.contract(t, u.ID, models.PolicyAuto, models.ContractActive, "2025-01-10", 420.5)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportContracts(context.Background(), &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(contractsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, c.PolicyNumber, rows[1][0])
	assert.Equal(t, "Jean Valjean", rows[1][1])
	assert.Equal(t, "auto", rows[1][3])
	assert.Equal(t, "2025-01-10", rows[1][4])
	assert.Equal(t, "420.5", rows[1][6])
	assert.Equal(t, "active", rows[1][7])
}
