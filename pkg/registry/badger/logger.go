package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger's internal log output through the
// registry's zap logger. Badger terminates its messages with newlines,
// which zap's encoder would double up, so they are trimmed.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (a *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	a.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
