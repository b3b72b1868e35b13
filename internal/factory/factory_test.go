package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/course_marketplace/internal/accesscontrol"
	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
)

func testConfig() coursetoken.CollectionConfig {
	return coursetoken.CollectionConfig{
		Name:        "Token Name",
		Symbol:      "Symbol",
		BaseURI:     "test://uri/",
		Price:       gt.Ether(1),
		Treasury:    "treasury",
		SupplyLimit: 100,
		TeacherShares: []coursetoken.TeacherShare{
			{Teacher: "teacher1", Shares: 5000},
			{Teacher: "teacher2", Shares: 4000},
			{Teacher: "teacher3", Shares: 1000},
		},
	}
}

func TestDeployCourseToken(t *testing.T) {
	ledger := gt.NewToken()
	rec := events.NewRecorder()
	svc := New(Params{Owner: "owner", Ledger: ledger, Events: rec})
	ctx := context.Background()

	reg, err := svc.DeployCourseToken(ctx, "owner", testConfig())
	require.NoError(t, err)
	require.NotNil(t, reg)

	c, err := reg.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Symbol", c.Symbol)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "registry:"+c.ID, reg.Address())

	assert.Len(t, rec.OfType(events.TypeCourseDeployed), 1)
	assert.Len(t, rec.OfType(events.TypeTeacherAdded), 3)

	got, err := svc.At(0)
	require.NoError(t, err)
	assert.Same(t, reg, got)
	assert.Equal(t, []string{reg.Address()}, svc.DeployedAddresses())
}

func TestDeployAdminGate(t *testing.T) {
	svc := New(Params{Owner: "owner", Ledger: gt.NewToken()})
	ctx := context.Background()

	_, err := svc.DeployCourseToken(ctx, "mallory", testConfig())
	require.ErrorIs(t, err, accesscontrol.ErrUnauthorized)
	assert.EqualError(t, err, "admin: wut?")

	require.NoError(t, svc.SetAdmin("owner", "deployer", true))
	_, err = svc.DeployCourseToken(ctx, "deployer", testConfig())
	require.NoError(t, err)
	assert.Len(t, svc.Deployed(), 1)
}

func TestDeployedRegistryMints(t *testing.T) {
	ledger := gt.NewToken()
	ledger.Mint("buyer", gt.Ether(10))
	svc := New(Params{Owner: "owner", Ledger: ledger})
	ctx := context.Background()

	reg, err := svc.DeployCourseToken(ctx, "owner", testConfig())
	require.NoError(t, err)

	require.NoError(t, ledger.Approve("buyer", reg.Address(), gt.Ether(10)))
	_, err = reg.Mint(ctx, "buyer", 10)
	require.NoError(t, err)

	assert.True(t, ledger.BalanceOf("teacher1").Eq(gt.Ether(5)))
	assert.True(t, ledger.BalanceOf("teacher2").Eq(gt.Ether(4)))
	assert.True(t, ledger.BalanceOf("teacher3").Eq(gt.Ether(1)))
}
