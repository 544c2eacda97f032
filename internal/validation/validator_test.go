package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/validation"
)

type swipeRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=like dislike"`
	Radius       *int   `json:"radiusKm,omitempty" validate:"omitempty,min=0,max=150"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, validation.Struct(swipeRequest{TargetUserID: "u1", Action: "like"}))

	err := validation.Struct(swipeRequest{Action: "like"})
	require.Error(t, err)
	assert.Equal(t, svcErr.KindValidation, svcErr.KindOf(err))
	assert.EqualError(t, err, "targetUserId is required")

	err = validation.Struct(swipeRequest{TargetUserID: "u1", Action: "superlike"})
	assert.EqualError(t, err, "action must be one of: like, dislike")

	big := 151
	err = validation.Struct(swipeRequest{TargetUserID: "u1", Action: "like", Radius: &big})
	assert.EqualError(t, err, "radiusKm must be at most 150")
}
