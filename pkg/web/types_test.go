package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbflow/kbflow/pkg/models"
)

func TestTaskSpec_ToModel_MaxRetries(t *testing.T) {
	t.Parallel()

	zero := 0
	five := 5

	tests := []struct {
		name       string
		maxRetries *int
		want       int
	}{
		{name: "omitted applies default", maxRetries: nil, want: models.DefaultMaxRetries},
		{name: "explicit zero disables retries", maxRetries: &zero, want: 0},
		{name: "explicit value preserved", maxRetries: &five, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := TaskSpec{ID: "a", Name: "A", Type: "custom", MaxRetries: tt.maxRetries}

			task := spec.toModel()
			assert.Equal(t, tt.want, task.MaxRetries)

			// Normalization downstream keeps the wire value intact.
			task.Normalize()
			assert.Equal(t, tt.want, task.MaxRetries)
		})
	}
}

func TestTaskSpec_ToModel_Timeout(t *testing.T) {
	t.Parallel()

	sec := 30
	spec := TaskSpec{ID: "a", Name: "A", Type: "custom", TimeoutSec: &sec}
	assert.Equal(t, 30*time.Second, spec.toModel().Timeout)

	unset := TaskSpec{ID: "a", Name: "A", Type: "custom"}
	assert.Equal(t, time.Duration(0), unset.toModel().Timeout)
}
