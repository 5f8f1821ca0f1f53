package wa

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter feeds whatsmeow's logger interface into slog. The client's
// info level is chatty (one line per keepalive), so it lands at debug.
type slogAdapter struct {
	l *slog.Logger
}

func newLogger(module string) waLog.Logger {
	return slogAdapter{l: slog.Default().With("module", module)}
}

func (s slogAdapter) Errorf(msg string, args ...any) { s.l.Error(fmt.Sprintf(msg, args...)) }
func (s slogAdapter) Warnf(msg string, args ...any)  { s.l.Warn(fmt.Sprintf(msg, args...)) }
func (s slogAdapter) Infof(msg string, args ...any)  { s.l.Debug(fmt.Sprintf(msg, args...)) }
func (s slogAdapter) Debugf(msg string, args ...any) { s.l.Debug(fmt.Sprintf(msg, args...)) }

func (s slogAdapter) Sub(module string) waLog.Logger {
	return slogAdapter{l: s.l.With("submodule", module)}
}
