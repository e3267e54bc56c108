package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/notify"
)

func TestScriptedListenerAgainThenContinue(t *testing.T) {
	l := &ScriptedListener{Again: 2}
	cause := ir.WakeCause{Raw: 0x5a0, Logical: 29}

	assert.Equal(t, notify.Proceed, l.Prepare(ir.Standby))
	assert.Equal(t, notify.Again, l.Post(ir.Standby, cause))
	assert.Equal(t, notify.Again, l.Post(ir.Standby, cause))
	assert.Equal(t, notify.Continue, l.Post(ir.Standby, cause))
	assert.Equal(t, 1, l.Prepares())
	assert.Len(t, l.Posts(), 3)
}

func TestScriptedListenerVeto(t *testing.T) {
	l := &ScriptedListener{Veto: true}
	assert.Equal(t, notify.Abort, l.Prepare(ir.SelfRefresh))
}

func TestRecordingHooks(t *testing.T) {
	h := &RecordingHooks{}
	wake, err := h.Begin(ir.SelfRefresh)
	require.NoError(t, err)
	snap, err := h.PreEnter(ir.SelfRefresh, wake)
	require.NoError(t, err)
	require.NoError(t, h.PostEnter(ir.SelfRefresh, snap))

	assert.Equal(t, []string{"begin self_refresh", "pre_enter none", "post_enter nil"}, h.Calls())
	assert.Equal(t, 1, h.Count("post_enter"))

	failing := &RecordingHooks{PreEnterErr: errors.New("arena full")}
	_, err = failing.PreEnter(ir.Standby, 0)
	assert.EqualError(t, err, "arena full")
}
