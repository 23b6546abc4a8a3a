package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsHash(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		same [][]int64
	}{
		{
			name: "empty selection hashes to empty string",
			ids:  nil,
		},
		{
			name: "order independent",
			ids:  []int64{1, 2, 3},
			same: [][]int64{{3, 2, 1}, {2, 1, 3}},
		},
		{
			name: "duplicates collapse",
			ids:  []int64{1, 2, 3},
			same: [][]int64{{1, 1, 2, 3}, {3, 3, 2, 2, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := OptionsHash(tt.ids)
			if len(tt.ids) == 0 {
				assert.Equal(t, "", base)
				return
			}

			assert.NotEmpty(t, base)
			for _, ids := range tt.same {
				assert.Equal(t, base, OptionsHash(ids))
			}
		})
	}
}

func TestOptionsHash_DistinctSelections(t *testing.T) {
	assert.NotEqual(t, OptionsHash([]int64{1, 2}), OptionsHash([]int64{1, 3}))
	assert.NotEqual(t, OptionsHash([]int64{1}), OptionsHash([]int64{11}))
	// {1, 12} must not collide with {11, 2} via naive concatenation
	assert.NotEqual(t, OptionsHash([]int64{1, 12}), OptionsHash([]int64{11, 2}))
}

func TestValidateIdempotencyKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantError bool
	}{
		{name: "uuid style key: ok", key: uuid.NewString()},
		{name: "alnum with separators: ok", key: "retry_2024-01.abc"},
		{name: "too short: error", key: "abc", wantError: true},
		{name: "too long: error", key: string(make([]byte, 129)), wantError: true},
		{name: "invalid charset: error", key: "abcd efgh!", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdempotencyKey(tt.key)
			if tt.wantError {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCart_FindItem(t *testing.T) {
	hash := OptionsHash([]int64{5, 7})
	item := CartItem{ID: NewID(), ProductID: 42, OptionsHash: hash}
	cart := Cart{Items: []CartItem{item}}

	require.NotNil(t, cart.FindItem(42, hash))
	assert.Nil(t, cart.FindItem(42, ""))
	assert.Nil(t, cart.FindItem(43, hash))

	require.NotNil(t, cart.FindItemByID(item.ID))
	assert.Nil(t, cart.FindItemByID(NewID()))
}
