package taskstate

import (
	"testing"
	"time"

	"github.com/agentcore/agentcore/agenterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllowedTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Submitted, Working, true},
		{Submitted, Failed, true},
		{Submitted, Canceled, true},
		{Submitted, Rejected, true},
		{Submitted, Completed, false},
		{Working, InputRequired, true},
		{Working, AuthRequired, true},
		{Working, Completed, true},
		{Working, Submitted, false},
		{InputRequired, Working, true},
		{InputRequired, InputRequired, false},
		{AuthRequired, Canceled, true},
		{Completed, Working, false},
		{Failed, Canceled, false},
		{Rejected, Working, false},
		{Unknown, Working, false},
	}
	for _, c := range cases {
		got := Validate(c.from, c.to)
		assert.Equalf(t, c.want, got, "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{Completed, Failed, Canceled, Rejected} {
		assert.True(t, s.IsTerminal())
	}
	for _, s := range []State{Submitted, Working, InputRequired, AuthRequired, Unknown} {
		assert.False(t, s.IsTerminal())
	}
}

func TestPausedStates(t *testing.T) {
	assert.True(t, InputRequired.IsPaused())
	assert.True(t, AuthRequired.IsPaused())
	assert.False(t, Working.IsPaused())
}

func TestRecordRejectsInvalidTransition(t *testing.T) {
	_, err := Record(Completed, Working, time.Now())
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindInvalidTransition))
}

func TestRecordAcceptsValidTransition(t *testing.T) {
	now := time.Now()
	tr, err := Record(Submitted, Working, now)
	require.NoError(t, err)
	assert.Equal(t, Submitted, tr.From)
	assert.Equal(t, Working, tr.To)
	assert.Equal(t, now, tr.Timestamp)
}
