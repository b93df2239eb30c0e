package ownership

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pitlog/internal/model"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		acting string
		owner  string
		want   Decision
	}{
		{"所有者は許可", "u1", "u1", Allowed},
		{"他人は拒否", "u2", "u1", Forbidden},
		{"未認証は拒否", "", "u1", Forbidden},
		{"所有者不明は拒否", "u1", "", Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.acting, tt.owner))
		})
	}
}

func TestDecision_Err(t *testing.T) {
	assert.NoError(t, Allowed.Err())

	err := Forbidden.Err()
	require.Error(t, err)
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.CategoryForbidden, apiErr.Category)
	assert.Equal(t, model.ErrCodeForbidden, apiErr.Code)
}

func TestZeroDecisionIsForbidden(t *testing.T) {
	var d Decision
	assert.Equal(t, Forbidden, d)
	assert.Equal(t, "forbidden", d.String())
}

func TestRequireHelpers(t *testing.T) {
	log := &model.Log{ID: "l1", UserID: "alice"}
	review := &model.Review{ID: "r1", LogID: "l1", UserID: "alice"}

	assert.NoError(t, RequireLog("alice", log))
	assert.Error(t, RequireLog("bob", log))
	assert.NoError(t, RequireReview("alice", review))
	assert.Error(t, RequireReview("bob", review))
}
