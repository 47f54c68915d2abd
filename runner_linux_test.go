package allocbench

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func minorFaults(t *testing.T) int64 {
	t.Helper()
	var ru unix.Rusage
	require.NoError(t, unix.Getrusage(unix.RUSAGE_SELF, &ru))
	return int64(ru.Minflt)
}

// TestFreshReplayTakesNoPageFaults checks that a freshly provisioned arena
// does not charge page faults to the timed replay.
func TestFreshReplayTakesNoPageFaults(t *testing.T) {
	cfg := testConfig()
	cfg.Verify = false
	r := newTestRunner(t, cfg)
	sess, err := r.NewSession(mustScenario(t, ScenarioSizesUpTo4096), linkedListFactory())
	require.NoError(t, err)
	defer sess.Close()

	const passes = 5
	var faults int64
	for i := range passes {
		require.NoError(t, sess.provision())
		before := minorFaults(t)
		_, err := sess.replay(i, nil)
		faults += minorFaults(t) - before
		require.NoError(t, err)
		sess.teardown()
	}
	require.Less(t, faults/passes, int64(16), "%d faults over %d replays", faults, passes)
}
