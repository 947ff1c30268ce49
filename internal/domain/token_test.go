package domain

import (
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMint(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	valid := base58.Encode(key)

	got, err := NormalizeMint("  " + valid + "\n")
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	for _, in := range []string{"", "   ", "0OIl", base58.Encode([]byte{1, 2, 3})} {
		_, err := NormalizeMint(in)
		assert.True(t, errors.Is(err, ErrInvalidMint), "input %q", in)
	}
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, PhaseBondingCurve, ParsePhase(" PumpFun "))
	assert.Equal(t, PhaseMigrated, ParsePhase("raydium"))
	assert.Equal(t, PhaseAggregator, ParsePhase("jupiter"))
	assert.Equal(t, PhaseUnknown, ParsePhase("orca-ish"))
	assert.True(t, PhaseBondingCurve.PreMigration())
	assert.False(t, PhaseMigrated.PreMigration())
}

func TestPositionCloneIsDeep(t *testing.T) {
	p := &Position{Mint: "m", Milestones: map[string]bool{"moonbag": true}}
	c := p.Clone()
	c.Milestones["risk_high"] = true
	assert.False(t, p.HasMilestone("risk_high"))
	assert.Equal(t, []string{"moonbag", "risk_high"}, c.MilestoneNames())
}

func TestLifecycleStateRank(t *testing.T) {
	assert.True(t, StateExit.Terminal())
	assert.True(t, StateExit.Valid())
	assert.False(t, LifecycleState("BOGUS").Valid())
	assert.True(t, StateTransition{From: StateScout, To: StateConfirm}.Escalation())
	assert.False(t, StateTransition{From: StateConviction, To: StateExit}.Escalation())
}
