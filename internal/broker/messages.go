package broker

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/databroker/internal/data"
)

// Severity selects one of the reserved message streams.
type Severity int

// Message severities, most severe first.
const (
	SeverityFatal Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityDebug
	severityCount
)

// String returns the stream name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a stream name back to its severity.
func ParseSeverity(name string) (Severity, bool) {
	for s := Severity(0); s < severityCount; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

func (s Severity) level() zapcore.Level {
	switch s {
	case SeverityFatal, SeverityError:
		return zapcore.ErrorLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	case SeverityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Emit formats a message and pushes it on the stream of sev as a package
// with a single string item named "message". The message is also written
// to the broker logger; fatal messages are logged at error level and never
// terminate the process.
func (b *Broker) Emit(sev Severity, format string, args ...any) {
	if sev < 0 || sev >= severityCount {
		sev = SeverityError
	}
	msg := fmt.Sprintf(format, args...)

	if ce := b.logger.Check(sev.level(), msg); ce != nil {
		ce.Write(zap.Stringer("severity", sev))
	}

	var p data.Package
	data.Add(&p, MessageItemName, msg)
	b.Push(b.messageIDs[sev], p, nil)
}

// EmitFatal emits on the fatal stream.
func (b *Broker) EmitFatal(format string, args ...any) { b.Emit(SeverityFatal, format, args...) }

// EmitError emits on the error stream.
func (b *Broker) EmitError(format string, args ...any) { b.Emit(SeverityError, format, args...) }

// EmitWarning emits on the warning stream.
func (b *Broker) EmitWarning(format string, args ...any) { b.Emit(SeverityWarning, format, args...) }

// EmitInfo emits on the info stream.
func (b *Broker) EmitInfo(format string, args ...any) { b.Emit(SeverityInfo, format, args...) }

// EmitDebug emits on the debug stream.
func (b *Broker) EmitDebug(format string, args ...any) { b.Emit(SeverityDebug, format, args...) }

// MessageStream returns the id of the stream of sev.
func (b *Broker) MessageStream(sev Severity) data.StreamID {
	if sev < 0 || sev >= severityCount {
		return 0
	}
	return b.messageIDs[sev]
}
