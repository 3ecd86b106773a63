package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
)

func TestValidateAccelerator_RejectsImpossibleCount(t *testing.T) {
	spec := backend.JobSpec{
		Region:      "us-ashburn-1",
		MachineType: "BM.GPU3.8",
		Resources:   backend.ResourceRequest{AcceleratorType: "V100", AcceleratorCount: 3},
	}

	err := ValidateAccelerator(spec)
	require.Error(t, err)
	kind, ok := calerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, calerr.ValidationError, kind)
	assert.Contains(t, err.Error(), "valid counts")
}

func TestValidateAccelerator_AcceptsValidCount(t *testing.T) {
	spec := backend.JobSpec{
		Region:      "us-ashburn-1",
		MachineType: "BM.GPU3.8",
		Resources:   backend.ResourceRequest{AcceleratorType: "V100", AcceleratorCount: 4},
	}
	assert.NoError(t, ValidateAccelerator(spec))
}

func TestValidateAccelerator_ForceSkipsValidation(t *testing.T) {
	spec := backend.JobSpec{
		Region:      "us-ashburn-1",
		MachineType: "BM.GPU3.8",
		Resources:   backend.ResourceRequest{AcceleratorType: "V100", AcceleratorCount: 999},
		Force:       true,
	}
	assert.NoError(t, ValidateAccelerator(spec))
}

func TestValidateAccelerator_UnknownCombinationIsValidationError(t *testing.T) {
	spec := backend.JobSpec{
		Region:      "eu-frankfurt-1",
		MachineType: "BM.GPU3.8",
		Resources:   backend.ResourceRequest{AcceleratorType: "V100", AcceleratorCount: 1},
	}
	err := ValidateAccelerator(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compatibility entry")
}
