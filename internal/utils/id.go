package utils

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Epoch is the snowflake epoch (2015-01-01T00:00:00Z) legacy clients use to
// derive creation timestamps from ids.
const Epoch int64 = 1420070400000

// NewSessionID returns an opaque gateway session identifier.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var defaultGenerator = &snowflakeGenerator{}

// NewID returns a unique snowflake id as a decimal string.
func NewID() string {
	return strconv.FormatInt(defaultGenerator.next(time.Now()), 10)
}

// SnowflakeTime returns the creation time encoded in a snowflake id.
func SnowflakeTime(id string) (time.Time, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli((n >> 22) + Epoch).UTC(), true
}

type snowflakeGenerator struct {
	mu       sync.Mutex
	lastMS   int64
	sequence int64
}

func (g *snowflakeGenerator) next(now time.Time) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli() - Epoch
	if ms < g.lastMS {
		ms = g.lastMS
	}
	if ms == g.lastMS {
		g.sequence = (g.sequence + 1) & 0xfff
		if g.sequence == 0 {
			// 4096 ids in one millisecond; borrow the next one.
			ms++
		}
	} else {
		g.sequence = 0
	}
	g.lastMS = ms

	return ms<<22 | g.sequence
}
