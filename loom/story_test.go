package loom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// joinedText concatenates every buffer line's rendered text, which is the
// convenient form for asserting on a scenario's overall narrative output
// without pinning down exactly how many buffer entries a divert or an empty
// fallback line happens to contribute.
func joinedText(buf []Line) string {
	var sb strings.Builder
	for _, l := range buf {
		sb.WriteString(l.Text())
	}
	return sb.String()
}

func mustReadStory(t *testing.T, script string) *Story {
	t.Helper()
	story, err := ReadStoryFromString(script)
	require.NoError(t, err)
	return story
}

// Scenario 1: trivial line + single choice.
func TestScenarioTrivialLineAndSingleChoice(t *testing.T) {
	story := mustReadStory(t, "Hello, World!\n*Hello[ back!] right back at you!")
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!\n", joinedText(buf))
	require.Equal(t, PromptChoice, prompt.Kind)
	require.Len(t, prompt.Choices, 1)
	assert.Equal(t, "Hello back!", prompt.Choices[0].Text)

	require.NoError(t, story.MakeChoice(0))
	buf = buf[:0]
	prompt, err = story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello right back at you!\n", joinedText(buf))
	assert.Equal(t, PromptDone, prompt.Kind)
}

// Scenario 2: sticky choices stay eligible; once-only choices drop out
// after being taken, across a divert that loops back to the same
// branching point.
func TestScenarioStickyVsOnceOnly(t *testing.T) {
	script := `
=== start ===
+ A
* B
- -> start
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	require.Len(t, prompt.Choices, 2)
	assert.Equal(t, "A", prompt.Choices[0].Text)
	assert.Equal(t, "B", prompt.Choices[1].Text)

	require.NoError(t, story.MakeChoice(1)) // take B, the once-only branch
	buf = buf[:0]
	prompt, err = story.Resume(&buf)
	require.NoError(t, err)
	require.Equal(t, PromptChoice, prompt.Kind)
	require.Len(t, prompt.Choices, 1)
	assert.Equal(t, "A", prompt.Choices[0].Text)
}

// Scenario 3: when only a fallback remains eligible, it is auto-selected
// with no prompt to the host.
func TestScenarioFallbackAutoSelect(t *testing.T) {
	script := `
=== start ===
* A -> start
* -> elsewhere
= elsewhere
You arrive elsewhere.
-> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	require.Equal(t, PromptChoice, prompt.Kind)
	require.Len(t, prompt.Choices, 1)
	assert.Equal(t, "A", prompt.Choices[0].Text)

	require.NoError(t, story.MakeChoice(0))
	buf = buf[:0]
	prompt, err = story.Resume(&buf)
	require.NoError(t, err)
	// No choice is re-presented: A is exhausted, so the fallback fires on
	// its own and the story runs straight through to its ending.
	assert.Contains(t, joinedText(buf), "You arrive elsewhere.")
	assert.Equal(t, PromptDone, prompt.Kind)
}

// Scenario 4: a choice guarded by a condition is presented only when the
// condition holds, and a snapshot taken before/after the guard variable
// changes restores to the matching presentation.
func TestScenarioConditionOnChoiceWithSnapshotRestore(t *testing.T) {
	script := `
VAR torch = false

=== start ===
* {torch} Light the way. -> lit
* Stay in the dark. -> dark
= lit
It is lit.
-> END
= dark
Too dark.
-> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	require.Len(t, prompt.Choices, 1)
	assert.Equal(t, "Stay in the dark.", prompt.Choices[0].Text)

	snapBefore, err := story.Snapshot()
	require.NoError(t, err)

	require.NoError(t, story.SetVariable("torch", NewBool(true)))
	snapAfter, err := story.Snapshot()
	require.NoError(t, err)

	restoredBefore := mustReadStory(t, script)
	require.NoError(t, restoredBefore.Restore(snapBefore))
	buf = buf[:0]
	prompt, err = restoredBefore.Resume(&buf)
	require.NoError(t, err)
	require.Len(t, prompt.Choices, 1)
	assert.Equal(t, "Stay in the dark.", prompt.Choices[0].Text)

	restoredAfter := mustReadStory(t, script)
	require.NoError(t, restoredAfter.Restore(snapAfter))
	buf = buf[:0]
	prompt, err = restoredAfter.Resume(&buf)
	require.NoError(t, err)
	require.Len(t, prompt.Choices, 2)
	assert.Equal(t, "Light the way.", prompt.Choices[0].Text)
	assert.Equal(t, "Stay in the dark.", prompt.Choices[1].Text)
}

// Scenario 5: a numeric expression embedded in a line re-renders against
// whatever the variable currently holds, including after it switches from
// Int to Float.
func TestScenarioNumericExpressionInLine(t *testing.T) {
	script := `
VAR count = 3

You have {count + 2} coins.
-> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, "You have 5 coins.\n", joinedText(buf))
	assert.Equal(t, PromptDone, prompt.Kind)

	// Re-render the same line directly to exercise the post-change value,
	// since the story above has already reached its ending.
	story2 := mustReadStory(t, script)
	require.NoError(t, story2.SetVariable("count", NewFloat(1.5)))
	v, ok := story2.GetVariable("count")
	require.True(t, ok)
	expr, err := ParseExpressionText("count + 2")
	require.NoError(t, err)
	data := NewFollowData()
	data.Variables["count"] = v
	result, err := expr.Eval(data)
	require.NoError(t, err)
	s, err := result.String(data)
	require.NoError(t, err)
	assert.Equal(t, "3.5", s)
}

// Scenario 6 (invariant form): a divert chain that never emits a line and
// never reaches a choice or an ending trips InfiniteLoop within the
// configured bound.
func TestScenarioDivertChainTripsInfiniteLoopGuard(t *testing.T) {
	script := `
=== a ===
-> b
= nothing
=== b ===
-> a
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	_, err := story.Resume(&buf)
	require.Error(t, err)
	var loopErr *InfiniteLoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, maxDivertChain, loopErr.DivertChainLength)
}

// Scenario 6 (visit-count form): a knot re-entered under host control
// reports its own incrementing visit count through an embedded address
// expression.
func TestScenarioRevisitedKnotReportsIncrementingVisitCount(t *testing.T) {
	script := `
=== a ===
Visits: {a}
+ Again -> a
* -> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Visits: 1\n", joinedText(buf))
	require.Len(t, prompt.Choices, 1)

	require.NoError(t, story.MakeChoice(0))
	buf = buf[:0]
	prompt, err = story.Resume(&buf)
	require.NoError(t, err)
	assert.Contains(t, joinedText(buf), "Visits: 2\n")

	require.NoError(t, story.MakeChoice(0))
	buf = buf[:0]
	_, err = story.Resume(&buf)
	require.NoError(t, err)
	assert.Contains(t, joinedText(buf), "Visits: 3\n")
}

func TestStoryLifecycleErrors(t *testing.T) {
	script := `
=== start ===
* A -> END
* B -> END
`
	story := mustReadStory(t, script)

	var buf []Line
	_, err := story.Resume(&buf)
	assert.ErrorIs(t, err, ErrResumedBeforeStart)

	assert.ErrorIs(t, story.MakeChoice(0), ErrMadeChoiceWithoutChoice)

	require.NoError(t, story.Start())
	assert.ErrorIs(t, story.Start(), ErrCannotStartTwice)

	_, err = story.Resume(&buf)
	require.NoError(t, err)

	err = story.MakeChoice(7)
	var choiceErr *InvalidChoiceError
	require.ErrorAs(t, err, &choiceErr)
	assert.Equal(t, 7, choiceErr.PresentedIndex)
	assert.Equal(t, 2, choiceErr.PresentedLen)
}

// A Resume with no intervening MakeChoice re-presents the same choice set
// without moving the position stack or any visit count.
func TestResumeWithoutChoiceRePresentsSameChoices(t *testing.T) {
	script := `
=== start ===
* A -> END
* B -> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	first, err := story.Resume(&buf)
	require.NoError(t, err)
	require.Equal(t, PromptChoice, first.Kind)

	again, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, first.Choices, again.Choices)
	assert.Equal(t, uint32(1), story.data.VisitCount("start", ""))
}

func TestSetVariableRejectsKindChangeAndDivert(t *testing.T) {
	story := mustReadStory(t, "VAR name = \"Finn\"\nHello.\n-> END")

	require.Error(t, story.SetVariable("name", NewInt(3)))
	require.NoError(t, story.SetVariable("name", NewString("Rey")))
	require.Error(t, story.SetVariable("name", NewDivertVar(EndAddress())))

	// Int and Float count as the same numeric kind for reassignment.
	require.NoError(t, story.SetVariable("coins", NewInt(3)))
	require.NoError(t, story.SetVariable("coins", NewFloat(1.5)))
}

// Invariant: the position stack is always odd-length at a prompt boundary
// and once the story is finished.
func TestPositionStackStaysOddLength(t *testing.T) {
	script := `
=== start ===
* A -> start
* B -> done
= done
The end.
-> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())
	assert.Len(t, story.stack, 1)

	var buf []Line
	_, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.True(t, len(story.stack)%2 == 1, "stack length %d should be odd", len(story.stack))

	require.NoError(t, story.MakeChoice(1))
	buf = buf[:0]
	prompt, err := story.Resume(&buf)
	require.NoError(t, err)
	assert.Equal(t, PromptDone, prompt.Kind)
	assert.True(t, len(story.stack)%2 == 1, "stack length %d should be odd", len(story.stack))
}

// Invariant: a stitch's visit_count equals the number of times follow
// entered its RootNode with a fresh (length-1) stack, regardless of how
// many times an inner branch was re-entered along the way.
func TestStitchVisitCountCountsFreshEntriesOnly(t *testing.T) {
	script := `
=== start ===
Hello.
+ Loop -> start
* -> END
`
	story := mustReadStory(t, script)
	require.NoError(t, story.Start())

	var buf []Line
	for i := 0; i < 3; i++ {
		_, err := story.Resume(&buf)
		require.NoError(t, err)
		buf = buf[:0]
		if i < 2 {
			require.NoError(t, story.MakeChoice(0))
		}
	}
	assert.Equal(t, uint32(3), story.data.VisitCount("start", ""))
}
