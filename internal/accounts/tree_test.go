package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeGroupsChildrenUnderParents(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	root := mustCreate(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Assets", Type: AccountTypeAsset})
	child := mustCreate(t, svc, CreateInput{CompanyID: 1, Code: "1100", Name: "Current Assets", Type: AccountTypeAsset, ParentID: &root.ID})
	mustCreate(t, svc, CreateInput{CompanyID: 1, Code: "1110", Name: "Cash", Type: AccountTypeAsset, ParentID: &child.ID, IsPostable: true, OpeningBalance: 500})
	mustCreate(t, svc, CreateInput{CompanyID: 1, Code: "1120", Name: "Bank", Type: AccountTypeAsset, ParentID: &child.ID, IsPostable: true, OpeningBalance: 1500})

	roots, err := svc.Tree(context.Background(), 1, "")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 1)
	assert.Len(t, roots[0].Children[0].Children, 2)
	assert.Equal(t, "1110", roots[0].Children[0].Children[0].Code)
	assert.InDelta(t, 2000.0, roots[0].RolledBalance, 0.001)
}

func TestTreePromotesOrphansToRoots(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	mustCreate(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Assets", Type: AccountTypeAsset})
	missing := int64(999)
	repo.accounts[50] = Account{ID: 50, CompanyID: 1, Code: "1500", Name: "Orphan", Level: 2, ParentID: &missing, Type: AccountTypeAsset, Lifecycle: LifecycleActive}

	roots, err := svc.Tree(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}
