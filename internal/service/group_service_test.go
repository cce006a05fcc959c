package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

func TestCreateOrGetMasterFolioIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := MasterFolioInput{GroupID: "wedding-0510", MasterBookingID: "b-1", GroupName: "Okafor wedding"}

	first, existing, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, in)
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, domain.FolioMaster, first.Kind)
	require.NotNil(t, first.GroupID)
	assert.Equal(t, "wedding-0510", *first.GroupID)

	second, existing, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, in)
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first.ID, second.ID)

	_, _, err = f.groups.CreateOrGetMasterFolio(ctx, f.desk, MasterFolioInput{MasterBookingID: "b-1"})
	requireCode(t, err, domain.CodeValidationFailed)
}

func TestSyncMasterTotalsAggregatesChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	master, _, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, MasterFolioInput{GroupID: "g-1", MasterBookingID: "b-1"})
	require.NoError(t, err)

	_, a := f.checkedIn(t, 1, 10000)
	_, b := f.checkedIn(t, 1, 5000)
	_, err = f.ledger.PostPayment(ctx, f.desk, PostInput{FolioID: b.ID, Amount: 2000, Description: "Deposit"})
	require.NoError(t, err)

	_, err = f.groups.LinkChild(ctx, f.desk, a.ID, master.ID)
	require.NoError(t, err)
	_, err = f.groups.LinkChild(ctx, f.desk, b.ID, master.ID)
	require.NoError(t, err)

	// Linking moves no money.
	assert.Zero(t, f.folio(t, master.ID).TotalCharges)

	synced, err := f.groups.SyncMasterTotals(ctx, f.desk, master.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), synced.TotalCharges)
	assert.Equal(t, int64(2000), synced.TotalPayments)
	assert.Equal(t, int64(13000), synced.Balance)

	_, err = f.ledger.PostCharge(ctx, f.desk, PostInput{FolioID: master.ID, Amount: 1000, Description: "Banquet hall"})
	require.NoError(t, err)

	synced, err = f.groups.SyncMasterTotals(ctx, f.desk, master.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(16000), synced.TotalCharges)

	again, err := f.groups.SyncMasterTotals(ctx, f.desk, master.ID)
	require.NoError(t, err)
	assert.Equal(t, synced.TotalCharges, again.TotalCharges)
	assert.Equal(t, synced.TotalPayments, again.TotalPayments)
	assert.True(t, again.Consistent())
}

func TestLinkChildRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, _, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, MasterFolioInput{GroupID: "g-1", MasterBookingID: "b-1"})
	require.NoError(t, err)
	m2, _, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, MasterFolioInput{GroupID: "g-2", MasterBookingID: "b-2"})
	require.NoError(t, err)
	_, child := f.checkedIn(t, 1, 10000)
	_, other := f.checkedIn(t, 1, 10000)

	_, err = f.groups.LinkChild(ctx, f.desk, m2.ID, m1.ID)
	requireCode(t, err, domain.CodeValidationFailed)

	_, err = f.groups.LinkChild(ctx, f.desk, child.ID, other.ID)
	requireCode(t, err, domain.CodeValidationFailed)

	linked, err := f.groups.LinkChild(ctx, f.desk, child.ID, m1.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.ParentFolioID)
	assert.Equal(t, m1.ID, *linked.ParentFolioID)

	_, err = f.groups.LinkChild(ctx, f.desk, child.ID, m1.ID)
	require.NoError(t, err)

	_, err = f.groups.LinkChild(ctx, f.desk, child.ID, m2.ID)
	requireCode(t, err, domain.CodeDuplicateFolio)

	foreign := domain.Actor{UserID: "x", TenantID: "tenant-2"}
	_, err = f.groups.LinkChild(ctx, foreign, other.ID, m1.ID)
	requireCode(t, err, domain.CodeFolioNotFound)
}
