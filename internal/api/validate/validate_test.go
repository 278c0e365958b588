package validate

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/iris_server/internal/credit"
)

type planRequest struct {
	PlanID string `json:"plan_id" binding:"required,plan_id"`
}

func TestPlanID(t *testing.T) {
	require.NoError(t, Register(credit.DefaultCatalog()))

	tests := []struct {
		plan  string
		valid bool
	}{
		{"free", true},
		{"basic", true},
		{"premium", true},
		{"gold", false},
		{"BASIC", false},
	}

	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&planRequest{PlanID: tt.plan})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
