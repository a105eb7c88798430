package games

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/rps-canvas/internal/engine"
)

func TestDecideDrawIffEqual(t *testing.T) {
	for _, a := range Choices() {
		for _, b := range Choices() {
			got := Decide(a, b)
			if a == b {
				assert.Equal(t, Draw, got, "%s vs %s", a, b)
			} else {
				assert.NotEqual(t, Draw, got, "%s vs %s", a, b)
			}
		}
	}
}

func TestBeatsIsAntisymmetric(t *testing.T) {
	for _, a := range Choices() {
		assert.False(t, a.Beats(a), "%s must not beat itself", a)
		for _, b := range Choices() {
			if a == b {
				continue
			}
			assert.True(t, a.Beats(b) != b.Beats(a), "exactly one of %s/%s must win", a, b)
		}
	}
}

func TestBeatsFormsCycle(t *testing.T) {
	for _, a := range Choices() {
		beaten := 0
		for _, b := range Choices() {
			if a.Beats(b) {
				beaten++
			}
		}
		assert.Equal(t, 1, beaten, "%s must beat exactly one move", a)
	}

	assert.True(t, Rock.Beats(Scissors))
	assert.True(t, Scissors.Beats(Paper))
	assert.True(t, Paper.Beats(Rock))
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		user, counter Choice
		want          Outcome
	}{
		{Rock, Scissors, Win},
		{Rock, Paper, Lose},
		{Paper, Rock, Win},
		{Paper, Scissors, Lose},
		{Scissors, Paper, Win},
		{Scissors, Rock, Lose},
		{Paper, Paper, Draw},
	}
	for _, tt := range tests {
		t.Run(tt.user.String()+"_vs_"+tt.counter.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.user, tt.counter))
		})
	}
}

func TestDrawCounterCoversAllChoices(t *testing.T) {
	assert.Equal(t, Rock, DrawCounter(engine.FixedSource(0)))
	assert.Equal(t, Rock, DrawCounter(engine.FixedSource(0.33)))
	assert.Equal(t, Paper, DrawCounter(engine.FixedSource(0.34)))
	assert.Equal(t, Paper, DrawCounter(engine.FixedSource(0.66)))
	assert.Equal(t, Scissors, DrawCounter(engine.FixedSource(0.67)))
	assert.Equal(t, Scissors, DrawCounter(engine.FixedSource(0.9999999)))
	assert.Equal(t, Scissors, DrawCounter(engine.FixedSource(1.5)))
	assert.Equal(t, Rock, DrawCounter(engine.FixedSource(-1)))
}

func TestFloatForRoundTrips(t *testing.T) {
	for _, c := range Choices() {
		assert.Equal(t, c, DrawCounter(engine.FixedSource(FloatFor(c))))
	}
}

func TestResolve(t *testing.T) {
	result := Resolve(Rock, engine.FixedSource(FloatFor(Scissors)))
	assert.Equal(t, Result{User: Rock, Counter: Scissors, Outcome: Win}, result)

	// Outcome always agrees with the two moves
	src := engine.NewSeededSource("server", "client", 0)
	for i := 0; i < 200; i++ {
		r := Resolve(Paper, src)
		require.True(t, r.Counter.Valid())
		assert.Equal(t, Decide(r.User, r.Counter), r.Outcome)
	}
}

func TestDrawCounterIsRoughlyUniform(t *testing.T) {
	src := engine.NewSeededSource("uniform", "check", 0)
	counts := map[Choice]int{}
	const n = 3000
	for i := 0; i < n; i++ {
		counts[DrawCounter(src)]++
	}
	for _, c := range Choices() {
		assert.InDelta(t, n/3, counts[c], n*0.05, "draw count for %s", c)
	}
}

func TestParseChoice(t *testing.T) {
	c, ok := ParseChoice("scissors")
	require.True(t, ok)
	assert.Equal(t, Scissors, c)

	_, ok = ParseChoice("lizard")
	assert.False(t, ok)

	_, ok = ParseChoice("Rock")
	assert.False(t, ok)
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(Result{User: Rock, Counter: Paper, Outcome: Lose})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"rock","counter":"paper","outcome":"lose"}`, string(raw))

	var back Result
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, Result{User: Rock, Counter: Paper, Outcome: Lose}, back)

	_, err = json.Marshal(Result{})
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`{"user":"rock","counter":"paper","outcome":"tie"}`), &back))
}
