package broker

import (
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/pattern"
)

func zapStream(info data.Info) zap.Field {
	return zap.String("stream", info.String())
}

func zapPattern(p pattern.Pattern) zap.Field {
	return zap.String("pattern", p.String())
}

func zapMode(k pendingKind) zap.Field {
	return zap.Stringer("mode", k)
}
