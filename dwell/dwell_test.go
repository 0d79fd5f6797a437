package dwell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapflow/reader"
	"tapflow/reader/readertest"
)

// countingWaiter never sleeps but records what it was asked to wait for.
type countingWaiter struct {
	waits []time.Duration
}

func (w *countingWaiter) Wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return ctx.Err()
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 3
	return p
}

func TestReadStableSkipsTimeouts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := readertest.New(
		readertest.Empty(),
		readertest.Empty(),
		readertest.Present("AABBCC"),
	)
	script.Done = cancel
	w := &countingWaiter{}
	r := NewReader(script, testPolicy(), w)

	uid, ok := r.ReadStable(ctx)
	require.True(t, ok)
	assert.Equal(t, "AABBCC", uid.String())
	assert.Equal(t, 3, script.Probes)
	assert.Equal(t, 0, script.Open(), "every session released")
	// One final settle pause after the good read.
	assert.Equal(t, []time.Duration{testPolicy().SettleDelay}, w.waits)
}

func TestReadStableToleratesFlakyReads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := readertest.New(readertest.Flaky("AABBCC", 2))
	script.Done = cancel
	r := NewReader(script, testPolicy(), &countingWaiter{})

	uid, ok := r.ReadStable(ctx)
	require.True(t, ok)
	assert.Equal(t, "AABBCC", uid.String())
	assert.Equal(t, 3, script.Transmits)
	assert.Equal(t, 3, script.Releases)
	assert.Equal(t, 1, script.Probes)
}

func TestReadStableAbandonsExhaustedProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First presence never reads; the loop must probe again and take the
	// second one instead of retrying the first.
	script := readertest.New(
		readertest.Flaky("AABBCC", -1),
		readertest.Present("DDEEFF"),
	)
	script.Done = cancel
	r := NewReader(script, testPolicy(), &countingWaiter{})

	uid, ok := r.ReadStable(ctx)
	require.True(t, ok)
	assert.Equal(t, "DDEEFF", uid.String())
	assert.Equal(t, 2, script.Probes)
	assert.Equal(t, testPolicy().MaxAttempts+1, script.Transmits)
	assert.Equal(t, 0, script.Open())
}

func TestReadStableNeverReturnsFailedReads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := readertest.New(
		readertest.Step{UID: readertest.MustUID("AABBCC"), Failures: -1, Status: reader.StatusSuccess},
		readertest.Step{UID: readertest.MustUID("AABBCC"), Failures: -1, Status: 0x6A82},
		readertest.Step{UID: readertest.MustUID("AABBCC"), ConnectErr: errors.New("sharing violation")},
		readertest.Empty(),
	)
	script.Done = cancel
	r := NewReader(script, testPolicy(), &countingWaiter{})

	uid, ok := r.ReadStable(ctx)
	assert.False(t, ok)
	assert.Nil(t, uid)
	assert.Equal(t, 0, script.Remaining())
	assert.Equal(t, 0, script.Open())
}

func TestReadStableCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := readertest.New(readertest.Present("AABBCC"))
	r := NewReader(script, testPolicy(), &countingWaiter{})

	_, ok := r.ReadStable(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, script.Probes)
}

func TestAwaitRemoval(t *testing.T) {
	ctx := context.Background()
	script := readertest.New(
		readertest.Present("AABBCC"),
		readertest.Present("AABBCC"),
		readertest.Empty(),
		readertest.Present("AABBCC"),
	)
	w := &countingWaiter{}
	r := NewReader(script, testPolicy(), w)

	assert.True(t, r.AwaitRemoval(ctx))
	assert.Equal(t, 3, script.Probes, "first empty probe is removal")
	assert.Len(t, w.waits, 2)
	assert.Equal(t, 1, script.Remaining())
}

func TestAwaitRemovalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(readertest.New(), testPolicy(), &countingWaiter{})
	assert.False(t, r.AwaitRemoval(ctx))
}

func TestTrackerSameUIDProducesNothing(t *testing.T) {
	tr := NewTracker(ResetOnRemoval)
	require.True(t, tr.Observe(readertest.MustUID("AABBCC")))

	assert.False(t, tr.Observe(readertest.MustUID("AABBCC")))
	assert.Equal(t, Active, tr.State())
	assert.Equal(t, "AABBCC", tr.Current().String())
}

func TestTrackerNewUIDProducesOne(t *testing.T) {
	tr := NewTracker(ResetOnRemoval)
	require.True(t, tr.Observe(readertest.MustUID("AABBCC")))

	assert.True(t, tr.Observe(readertest.MustUID("DDEEFF")))
	assert.Equal(t, "DDEEFF", tr.Current().String())
}

func TestTrackerResetPolicies(t *testing.T) {
	uid := readertest.MustUID("AABBCC")

	onRemoval := NewTracker(ResetOnRemoval)
	onRemoval.Observe(uid)
	onRemoval.Removed()
	assert.Equal(t, Idle, onRemoval.State())
	assert.Nil(t, onRemoval.Current())
	assert.True(t, onRemoval.Observe(uid), "re-presented card is a new dwell")

	onChange := NewTracker(ResetOnChange)
	onChange.Observe(uid)
	onChange.Removed()
	assert.Equal(t, Active, onChange.State())
	assert.False(t, onChange.Observe(uid), "legacy policy suppresses the same card")
	assert.True(t, onChange.Observe(readertest.MustUID("DDEEFF")))
}

func TestPolicyDefaultsAndValidate(t *testing.T) {
	p := Policy{MaxAttempts: 4}.WithDefaults()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.PollInterval)
	assert.Equal(t, ResetOnRemoval, p.Reset)
	assert.NoError(t, p.Validate())

	p.Reset = "sometimes"
	assert.Error(t, p.Validate())
}

func TestRealWaiterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealWaiter{}.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func runLoop(t *testing.T, policy ResetPolicy, steps ...readertest.Step) ([]Dwell, int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := readertest.New(steps...)
	script.Done = cancel

	var dwells []Dwell
	removals := 0
	loop := NewLoop(
		NewReader(script, testPolicy(), &countingWaiter{}),
		NewTracker(policy),
		HandlerFunc(func(_ context.Context, d Dwell) { dwells = append(dwells, d) }),
	)
	loop.OnRemoved = func(reader.UID) { removals++ }

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, script.Open())
	return dwells, removals
}

func TestLoopOneDwellPerPresentation(t *testing.T) {
	dwells, removals := runLoop(t, ResetOnRemoval,
		readertest.Present("1234ABCD"), // read
		readertest.Present("1234ABCD"), // still there
		readertest.Present("1234ABCD"), // still there
		readertest.Empty(),             // removed
		readertest.Empty(),             // idle
		readertest.Present("1234ABCD"), // re-presented
		readertest.Empty(),             // removed
	)

	require.Len(t, dwells, 2)
	assert.Equal(t, "1234ABCD", dwells[0].UID.String())
	assert.Equal(t, "1234ABCD", dwells[1].UID.String())
	assert.NotEqual(t, dwells[0].ID, dwells[1].ID)
	assert.Equal(t, 2, removals)
}

func TestLoopResetOnChangeSuppressesSameCard(t *testing.T) {
	dwells, _ := runLoop(t, ResetOnChange,
		readertest.Present("1234ABCD"),
		readertest.Empty(),
		readertest.Present("1234ABCD"),
		readertest.Empty(),
		readertest.Present("DDEEFF"),
		readertest.Empty(),
	)

	require.Len(t, dwells, 2)
	assert.Equal(t, "1234ABCD", dwells[0].UID.String())
	assert.Equal(t, "DDEEFF", dwells[1].UID.String())
}
