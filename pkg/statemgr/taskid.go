package statemgr

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idFilter replaces any rune outside [A-Za-z0-9_-] with a dash, so a
// role like "r.oot" yields "r-oot" and ids stay safe wherever they are
// embedded. Applied to the fully composed id, not per component.
func idFilter(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// generateTaskId produces a chronologically sortable, globally unique
// task id: <epochMillis>-<role>-<jobName>-<shardId>-<uuid>.
func generateTaskId(clock Clock, role, jobName string, shardId int) string {
	millis := clock.Now().UnixMilli()
	raw := fmt.Sprintf("%d-%s-%s-%d-%s", millis, role, jobName, shardId, uuid.NewString())
	return idFilter(raw)
}

// Clock supplies the current time; statemachine.Clock is the same
// shape but statemgr avoids importing it just for this.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}
