package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts the current time so expiry and pro-ration can be driven by tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
