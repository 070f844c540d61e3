package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normbook/normbook/core/norm"
	"github.com/normbook/normbook/tests"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), testutil.Config())

	actor := norm.Actor{ID: "trainer-1", Role: norm.RoleTrainer}
	extras := map[string]interface{}{"template_id": "tmpl-run"}
	logger.Warn("value fell into a boundary gap", extras, actor)

	out := buf.String()
	assert.Contains(t, out, "value fell into a boundary gap\n")
	assert.Contains(t, out, "template_id:tmpl-run")

	args := logger.prepare("msg", []interface{}{errors.New("boom"), actor, norm.Actor{ID: "other"}})
	assert.Len(t, args, 2, "actors are reported as the rollbar person, not as extras")
	assert.Equal(t, "msg", args[0])
}
