package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioProgram() *Program {
	return Build(
		[]Instruction{Write(0x10, 0x5), OrInto(0x10, 0x2)},
		[]Instruction{UpdateMasked(0x10, ^uint32(0x2), 0x8)},
	)
}

func TestBuildCopiesLegs(t *testing.T) {
	suspend := []Instruction{Write(0x10, 1)}
	p := Build(suspend, nil)

	suspend[0] = Write(0x20, 2)

	assert.Equal(t, Write(0x10, 1), p.At(Suspend, 0))
	assert.Equal(t, 1, p.Len())
}

func TestBuildCutsLegAtEnd(t *testing.T) {
	p := Build([]Instruction{Write(1, 1), End(), Write(2, 2)}, nil)

	assert.Equal(t, []Instruction{Write(1, 1)}, p.Leg(Suspend))
}

func TestProgramAtPastEndIsEnd(t *testing.T) {
	p := scenarioProgram()

	assert.Equal(t, OpEnd, p.At(Suspend, 2).Op)
	assert.Equal(t, OpEnd, p.At(Resume, 5).Op)
	assert.Equal(t, OpEnd, p.At(Resume, -1).Op)

	var nilProgram *Program
	assert.Equal(t, OpEnd, nilProgram.At(Suspend, 0).Op)
}

func TestProgramIsEmpty(t *testing.T) {
	var nilProgram *Program
	assert.True(t, nilProgram.IsEmpty())
	assert.True(t, Build(nil, nil).IsEmpty())
	assert.False(t, Build(nil, []Instruction{Delay(1)}).IsEmpty())
}

func TestProgramInstructionsLayout(t *testing.T) {
	p := scenarioProgram()

	assert.Equal(t, []Instruction{
		Write(0x10, 0x5),
		OrInto(0x10, 0x2),
		End(),
		UpdateMasked(0x10, 0xfffffffd, 0x8),
		End(),
	}, p.Instructions())
}

func TestFromInstructions(t *testing.T) {
	p := scenarioProgram()

	back, err := FromInstructions(p.Instructions())
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestFromInstructionsRejectsBadLayout(t *testing.T) {
	tests := []struct {
		name string
		list []Instruction
	}{
		{"no end", []Instruction{Write(1, 1)}},
		{"one end", []Instruction{Write(1, 1), End()}},
		{"three ends", []Instruction{End(), End(), End()}},
		{"trailing", []Instruction{End(), End(), Write(1, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromInstructions(tt.list)
			assert.Error(t, err)
		})
	}
}

func TestProgramPatched(t *testing.T) {
	p := Build(
		[]Instruction{Write(0x800, 0).WithLabel("div"), Write(0x804, 7)},
		[]Instruction{Write(0x800, 0).WithLabel("div")},
	)

	q, err := p.Patched("div", 31)
	require.NoError(t, err)

	assert.Equal(t, uint32(31), q.At(Suspend, 0).Value)
	assert.Equal(t, uint32(31), q.At(Resume, 0).Value)
	assert.Equal(t, uint32(7), q.At(Suspend, 1).Value)

	// Receiver untouched
	assert.Equal(t, uint32(0), p.At(Suspend, 0).Value)
}

func TestProgramPatchedUnknownLabel(t *testing.T) {
	_, err := scenarioProgram().Patched("nope", 1)
	assert.Error(t, err)

	_, err = scenarioProgram().Patched("", 1)
	assert.Error(t, err)
}

func TestProgramLabelsAndHalt(t *testing.T) {
	p := Build(
		[]Instruction{Write(1, 0).WithLabel("a"), Halt()},
		[]Instruction{Write(2, 0).WithLabel("b"), Write(3, 0).WithLabel("a")},
	)

	assert.Equal(t, []string{"a", "b"}, p.Labels())
	assert.True(t, p.HasHalt(Suspend))
	assert.False(t, p.HasHalt(Resume))
}

func TestParseSleepDepth(t *testing.T) {
	for _, d := range Depths {
		got, err := ParseSleepDepth(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	got, err := ParseSleepDepth("mem")
	require.NoError(t, err)
	assert.Equal(t, SelfRefresh, got)

	_, err = ParseSleepDepth("hibernate")
	assert.Error(t, err)
}

func TestParseOpcode(t *testing.T) {
	for op := range operandCount {
		got, err := ParseOpcode(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	_, err := ParseOpcode("poke8")
	assert.Error(t, err)
}
