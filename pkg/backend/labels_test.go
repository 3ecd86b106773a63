package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabelComponent(t *testing.T) {
	assert.Equal(t, "my_experiment", SanitizeLabelComponent("my.experiment"))
	assert.Equal(t, "abc123", SanitizeLabelComponent("ABC123"))
	assert.Equal(t, "a-b_c", SanitizeLabelComponent("a-b.c!@#"))
}

func TestMergeLabels_UserWinsOnCollisionAfterSanitization(t *testing.T) {
	derived := map[string]string{"owner.name": "system"}
	user := map[string]string{"owner_name": "alice"}

	merged := MergeLabels(derived, user)
	assert.Equal(t, "alice", merged["owner_name"])
	assert.Len(t, merged, 1)
}
