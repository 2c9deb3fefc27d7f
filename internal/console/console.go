// Package console prints broker messages and watched streams as text lines.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/broker"
	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/pattern"
)

// Options selects what a Console shows.
type Options struct {
	// Messages subscribes to the reserved message streams.
	Messages bool
	// MinSeverity hides messages less severe than this level. The zero
	// value selects SeverityInfo.
	MinSeverity broker.Severity
	// Sync delivers messages synchronously so none are coalesced.
	Sync bool
	// Watch lists group/name patterns whose updates are printed.
	Watch []string
	// JSON writes one JSON object per line instead of text.
	JSON bool
}

// Console is a broker.Receiver that renders deliveries to a writer.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	opts   Options
	logger *zap.Logger
	lines  uint64
}

// New creates a console writing to w.
func New(w io.Writer, opts Options, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinSeverity == 0 && opts.Messages {
		opts.MinSeverity = broker.SeverityInfo
	}
	return &Console{w: w, opts: opts, logger: logger}
}

// Attach subscribes the console to b.
func (c *Console) Attach(b *broker.Broker) {
	if c.opts.Messages {
		if c.opts.Sync {
			b.RegisterSync(c, broker.MessagesGroup, pattern.WildcardAny, 0)
		} else {
			b.RegisterAsync(c, broker.MessagesGroup, pattern.WildcardAny, 0)
		}
	}
	for _, w := range c.opts.Watch {
		group, name := splitPattern(w)
		b.RegisterAsync(c, group, name, 0)
		c.logger.Debug("console watching", zap.String("group", group), zap.String("name", name))
	}
}

// Detach removes every registration of the console from b.
func (c *Console) Detach(b *broker.Broker) int {
	return b.UnregisterAll(c)
}

// Lines returns the number of lines written.
func (c *Console) Lines() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

// Receive implements broker.Receiver.
func (c *Console) Receive(info data.Info, pkg data.Package, _ int) {
	line, ok := c.render(info, pkg)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		c.logger.Warn("console write failed", zap.Error(err))
		return
	}
	c.lines++
}

func (c *Console) render(info data.Info, pkg data.Package) (string, bool) {
	if info.Group == broker.MessagesGroup {
		sev, known := broker.ParseSeverity(info.Name)
		if known && sev > c.opts.MinSeverity {
			return "", false
		}
		msg, _ := data.Get[string](pkg, broker.MessageItemName)
		if c.opts.JSON {
			return c.encode(`{"severity":"","message":""}`, "severity", info.Name, "message", msg)
		}
		return fmt.Sprintf("[%s] %s", info.Name, msg), true
	}
	if c.opts.JSON {
		return c.encodeStream(info, pkg)
	}
	return fmt.Sprintf("%s/%s %s", info.Group, info.Name, pkg), true
}

// encode sets path/value pairs on base.
func (c *Console) encode(base string, kv ...string) (string, bool) {
	out := base
	for i := 0; i+1 < len(kv); i += 2 {
		var err error
		if out, err = sjson.Set(out, kv[i], kv[i+1]); err != nil {
			c.logger.Warn("console encode failed", zap.Error(err))
			return "", false
		}
	}
	return out, true
}

func (c *Console) encodeStream(info data.Info, pkg data.Package) (string, bool) {
	out, ok := c.encode(`{"group":"","name":"","id":0,"items":{}}`, "group", info.Group, "name", info.Name)
	if !ok {
		return "", false
	}
	out, err := sjson.Set(out, "id", uint64(info.ID))
	if err != nil {
		c.logger.Warn("console encode failed", zap.Error(err))
		return "", false
	}
	// Reverse order so the first of several equal names wins.
	for i := pkg.Len() - 1; i >= 0; i-- {
		v, _ := pkg.Item(i)
		if out, err = sjson.Set(out, "items."+escapePath(v.Name()), v.Interface()); err != nil {
			c.logger.Warn("console encode failed", zap.String("item", v.Name()), zap.Error(err))
			return "", false
		}
	}
	return out, true
}

// escapePath quotes the characters sjson treats as path syntax.
func escapePath(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// splitPattern splits "group/name" at the first slash. A bare pattern
// watches that name in every group.
func splitPattern(s string) (group, name string) {
	if group, name, ok := strings.Cut(s, "/"); ok {
		return group, name
	}
	return pattern.WildcardAny, s
}
