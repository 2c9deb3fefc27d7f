package script

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/broker"
	"github.com/dshills/databroker/internal/config"
	"github.com/dshills/databroker/internal/data"
	"github.com/dshills/databroker/internal/pattern"
)

// Lua entry points.
const (
	FuncProduce = "produce"
	FuncReceive = "receive"
)

// ErrWildcardProducer is returned when a producer script names a pattern.
var ErrWildcardProducer = errors.New("producer scripts need a concrete stream")

// Producer runs the script's produce(items, param) function. The function
// may edit items in place or return a table of updates.
type Producer struct {
	state  *State
	logger *zap.Logger
}

// NewProducer wraps state, which must define produce.
func NewProducer(state *State, logger *zap.Logger) (*Producer, error) {
	if !state.HasFunction(FuncProduce) {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, FuncProduce)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{state: state, logger: logger}, nil
}

// Produce implements broker.Producer. Script errors leave pkg unchanged.
func (p *Producer) Produce(info data.Info, pkg *data.Package, param int) {
	var items *lua.LTable
	work := pkg.Clone()
	err := p.state.Call(FuncProduce,
		func(L *lua.LState) []lua.LValue {
			items = itemsTable(L, work)
			return []lua.LValue{items, lua.LNumber(param)}
		},
		func(_ *lua.LState, results []lua.LValue) error {
			updates := items
			if len(results) > 0 {
				if t, ok := results[0].(*lua.LTable); ok {
					updates = t
				}
			}
			if skipped := applyTable(&work, updates); len(skipped) > 0 {
				p.logger.Debug("script items skipped",
					zap.Stringer("stream", info), zap.Strings("items", skipped))
			}
			return nil
		})
	if err != nil {
		p.logger.Warn("produce failed", zap.Stringer("stream", info), zap.Error(err))
		return
	}
	pkg.CopyFrom(work)
}

// Receiver runs the script's receive(group, name, items, param) function.
type Receiver struct {
	state  *State
	logger *zap.Logger
}

// NewReceiver wraps state, which must define receive.
func NewReceiver(state *State, logger *zap.Logger) (*Receiver, error) {
	if !state.HasFunction(FuncReceive) {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, FuncReceive)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{state: state, logger: logger}, nil
}

// Receive implements broker.Receiver.
func (r *Receiver) Receive(info data.Info, pkg data.Package, param int) {
	err := r.state.Call(FuncReceive, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{
			lua.LString(info.Group),
			lua.LString(info.Name),
			itemsTable(L, pkg),
			lua.LNumber(param),
		}
	}, nil)
	if err != nil {
		r.logger.Warn("receive failed", zap.Stringer("stream", info), zap.Error(err))
	}
}

// Plugin is a loaded script bound to one broker registration.
type Plugin struct {
	cfg      config.ScriptConfig
	state    *State
	producer *Producer
	receiver *Receiver
	logger   *zap.Logger
}

// Load runs the script file and prepares the role named in cfg.
func Load(cfg config.ScriptConfig, logger *zap.Logger, opts ...StateOption) (*Plugin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("script", cfg.Path))

	state := NewState(opts...)
	if err := state.DoFile(cfg.Path); err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("loading script %s: %w", cfg.Path, err)
	}

	p := &Plugin{cfg: cfg, state: state, logger: logger}
	var err error
	switch cfg.Role {
	case config.RoleProducer:
		p.producer, err = NewProducer(state, logger)
	case config.RoleReceiver:
		p.receiver, err = NewReceiver(state, logger)
	default:
		err = fmt.Errorf("unknown role %q", cfg.Role)
	}
	if err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("script %s: %w", cfg.Path, err)
	}
	return p, nil
}

// Attach registers the plugin with b. A registration that is parked until
// its stream, timer or trigger appears is not an error.
func (p *Plugin) Attach(b *broker.Broker) error {
	c := p.cfg
	var bound bool
	switch {
	case p.producer != nil:
		if pattern.Of(c.Group, c.Name).IsWildcard() {
			return fmt.Errorf("script %s: %w", c.Path, ErrWildcardProducer)
		}
		bound = b.RegisterTimedProducer(p.producer, c.Group, c.Name, c.Timer, c.Period, c.Param)
	default:
		switch c.ReceiverMode() {
		case config.ModeSync:
			bound = b.RegisterSync(p.receiver, c.Group, c.Name, c.Param)
		case config.ModeAsync:
			bound = b.RegisterAsync(p.receiver, c.Group, c.Name, c.Param)
		case config.ModeTimed:
			bound = b.RegisterTimedReceiver(p.receiver, c.Group, c.Name, c.Timer, c.Period, c.Param)
		case config.ModeTriggered:
			bound = b.RegisterTriggeredReceiver(p.receiver, c.Group, c.Name, c.Trigger, c.Param)
		default:
			return fmt.Errorf("script %s: unknown receiver mode %q", c.Path, c.Mode)
		}
	}
	p.logger.Info("script attached",
		zap.String("role", c.Role),
		zap.String("group", c.Group),
		zap.String("name", c.Name),
		zap.Bool("bound", bound))
	return nil
}

// Detach removes every registration of the plugin from b.
func (p *Plugin) Detach(b *broker.Broker) int {
	if p.producer != nil {
		return b.UnregisterAll(p.producer)
	}
	return b.UnregisterAll(p.receiver)
}

// Close releases the Lua state.
func (p *Plugin) Close() error {
	return p.state.Close()
}
