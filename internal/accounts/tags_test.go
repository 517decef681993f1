package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

func seedTwo(t *testing.T, db *store.DB, svc *Service) {
	t.Helper()
	update(t, db, func(ctx context.Context, tx *store.Tx) error {
		if _, err := svc.Create(ctx, tx, CreateParams{Code: 3100, Name: "Retained Earnings", NormalBalance: model.NormalCredit}); err != nil {
			return err
		}
		_, err := svc.Create(ctx, tx, CreateParams{Code: 3200, Name: "Other Equity", NormalBalance: model.NormalCredit})
		return err
	})
}

func TestAddTag(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(nil)
	seedTwo(t, db, svc)

	update(t, db, func(ctx context.Context, tx *store.Tx) error {
		require.NoError(t, svc.AddTag(ctx, tx, 3100, model.TagEquity))
		require.NoError(t, svc.AddTag(ctx, tx, 3100, model.TagClosingRetainedEarning))
		require.NoError(t, svc.AddTag(ctx, tx, 3200, model.TagEquity))

		tags, err := svc.Tags(ctx, tx, 3100)
		require.NoError(t, err)
		assert.Equal(t, []model.Tag{model.TagEquity, model.TagClosingRetainedEarning}, tags)

		equity, err := svc.AccountsWithTag(ctx, tx, model.TagEquity)
		require.NoError(t, err)
		assert.Len(t, equity, 2)

		re, err := svc.AccountWithTag(ctx, tx, model.TagClosingRetainedEarning)
		require.NoError(t, err)
		assert.Equal(t, 3100, re.Code)
		return nil
	})
}

func TestAddTag_Errors(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(nil)
	seedTwo(t, db, svc)
	update(t, db, func(ctx context.Context, tx *store.Tx) error {
		return svc.AddTag(ctx, tx, 3100, model.TagClosingRetainedEarning)
	})

	tests := []struct {
		name string
		code int
		tag  model.Tag
		want error
	}{
		{"unknown tag", 3100, model.Tag("Balance Sheet - Goodwill"), ledgererr.ErrUnknownTag},
		{"duplicate pair", 3100, model.TagClosingRetainedEarning, ledgererr.ErrDuplicateTag},
		{"unique held elsewhere", 3200, model.TagClosingRetainedEarning, ledgererr.ErrDuplicateUniqueTag},
		{"missing account", 9999, model.TagEquity, ledgererr.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := updateErr(db, func(ctx context.Context, tx *store.Tx) error {
				return svc.AddTag(ctx, tx, tt.code, tt.tag)
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUniqueTagMovesAfterRemove(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(nil)
	seedTwo(t, db, svc)

	update(t, db, func(ctx context.Context, tx *store.Tx) error {
		require.NoError(t, svc.AddTag(ctx, tx, 3100, model.TagClosingRetainedEarning))
		require.NoError(t, svc.RemoveTag(ctx, tx, 3100, model.TagClosingRetainedEarning))
		require.NoError(t, svc.AddTag(ctx, tx, 3200, model.TagClosingRetainedEarning))

		re, err := svc.AccountWithTag(ctx, tx, model.TagClosingRetainedEarning)
		require.NoError(t, err)
		assert.Equal(t, 3200, re.Code)
		return nil
	})
}

func TestUpdateTag_AlwaysFails(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(nil)
	seedTwo(t, db, svc)

	err := updateErr(db, func(ctx context.Context, tx *store.Tx) error {
		return svc.UpdateTag(ctx, tx, 3100, model.TagEquity, model.TagCurrentLiability)
	})
	assert.ErrorIs(t, err, ledgererr.ErrImmutableTag)
	assert.Equal(t, ledgererr.KindInvariant, ledgererr.KindOf(err))
}

func TestAccountWithTag_Missing(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(nil)

	err := updateErr(db, func(ctx context.Context, tx *store.Tx) error {
		_, err := svc.AccountWithTag(ctx, tx, model.TagCashOverShort)
		return err
	})
	assert.ErrorIs(t, err, ledgererr.ErrTaggedAccountMissing)
}
