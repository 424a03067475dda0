package analytics

import (
	"testing"
	"time"
)

func TestTrackDeploy_NoopWithoutWriteKey(t *testing.T) {
	c := New("")
	// Must not panic or block.
	c.TrackDeploy("t1", true, "", 5*time.Second)
	c.TrackDeploy("t1", false, "build", 30*time.Second)
	c.Close()
}
