package main

import (
	"fmt"

	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/dispatch"
)

// submissionFailureError turns a Dispatcher result with at least one
// failed tuple into the process's exit-code-1 error (spec.md §6: "exit
// codes: ... 1 on any submission failure").
func submissionFailureError(result dispatch.Result) error {
	failed := 0
	for _, o := range result.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return calerr.New(calerr.BackendError, "dispatch",
		fmt.Sprintf("%d of %d tuples failed submission", failed, len(result.Outcomes)), nil)
}

// requireGroupError is the ConfigInvalid (exit code 2) error a verb
// returns when --group is required but was left empty.
func requireGroupError(verb string) error {
	return calerr.New(calerr.ConfigInvalid, "main."+verb, "--group is required", nil)
}
