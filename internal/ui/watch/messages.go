package watch

import (
	"time"

	"github.com/agent462/drover/internal/status"
)

// pollTickMsg triggers the next status poll cycle.
type pollTickMsg struct{}

// statusMsg carries one completed fleet poll.
type statusMsg struct {
	Rows []status.Row
	At   time.Time
}
