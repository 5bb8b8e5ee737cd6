package account

import (
	"log/slog"

	"github.com/mark3labs/smartaccount-go"
)

// lifecycle follows one operation through its stages for logging.
type lifecycle struct {
	entry  string
	stage  smartaccount.Stage
	logger *slog.Logger
}

func (a *Account) track(entry string, start smartaccount.Stage) *lifecycle {
	return &lifecycle{entry: entry, stage: start, logger: a.logger}
}

func (l *lifecycle) advance(next smartaccount.Stage) {
	if !l.stage.CanTransition(next) {
		l.logger.Warn("unexpected stage transition", "entry", l.entry, "from", l.stage.String(), "to", next.String())
	}
	l.logger.Debug("operation stage", "entry", l.entry, "from", l.stage.String(), "to", next.String())
	l.stage = next
}
