package cloud

import (
	"fmt"
	"sort"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
)

// compatKey identifies one row of the static (region, machine-type,
// accelerator-type) compatibility table.
type compatKey struct {
	Region          string
	MachineType     string
	AcceleratorType string
}

// compatibilityTable enumerates, per (region, machine type, accelerator
// type), the accelerator counts the backend actually offers. This is the
// "static compatibility table" spec.md §4.4.2 requires client-side
// validation against, modeled on OCI Data Science's published flex-shape
// OCPU/GPU counts.
var compatibilityTable = map[compatKey][]int{
	{"us-ashburn-1", "VM.GPU3.1", "V100"}:   {1},
	{"us-ashburn-1", "VM.GPU3.2", "V100"}:   {2},
	{"us-ashburn-1", "VM.GPU3.4", "V100"}:   {4},
	{"us-ashburn-1", "BM.GPU3.8", "V100"}:   {1, 2, 4, 8},
	{"us-phoenix-1", "BM.GPU3.8", "V100"}:   {1, 2, 4, 8},
	{"us-ashburn-1", "BM.GPU4.8", "A100"}:   {1, 2, 4, 8},
	{"us-ashburn-1", "VM.Standard.E4", ""}:  {0},
}

// ValidateAccelerator checks spec's (region, machine-type, accelerator
// type, accelerator count) against compatibilityTable. On mismatch, it
// returns a ValidationError naming the offending dimension and the
// nearest valid accelerator counts, per spec.md §4.4.2 and §8 scenario 5.
func ValidateAccelerator(spec backend.JobSpec) error {
	if spec.Force {
		return nil
	}

	key := compatKey{Region: spec.Region, MachineType: spec.MachineType, AcceleratorType: spec.Resources.AcceleratorType}
	valid, ok := compatibilityTable[key]
	if !ok {
		return calerr.New(calerr.ValidationError, "cloud.ValidateAccelerator",
			fmt.Sprintf("no compatibility entry for region=%s machine_type=%s accelerator_type=%s",
				spec.Region, spec.MachineType, spec.Resources.AcceleratorType), nil)
	}

	for _, n := range valid {
		if n == spec.Resources.AcceleratorCount {
			return nil
		}
	}

	sorted := append([]int(nil), valid...)
	sort.Ints(sorted)
	return calerr.New(calerr.ValidationError, "cloud.ValidateAccelerator",
		fmt.Sprintf("accelerator count %d is not valid for region=%s machine_type=%s accelerator_type=%s; valid counts: %v",
			spec.Resources.AcceleratorCount, spec.Region, spec.MachineType, spec.Resources.AcceleratorType, sorted), nil)
}
