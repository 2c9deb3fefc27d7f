package script

import (
	"math"
	"slices"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/databroker/internal/data"
)

// itemsTable converts pkg into a Lua table keyed by item name. Duplicate
// names resolve to the first item, matching data.Package lookups.
func itemsTable(L *lua.LState, pkg data.Package) *lua.LTable {
	t := L.CreateTable(0, pkg.Len())
	for i := pkg.Len() - 1; i >= 0; i-- {
		v, _ := pkg.Item(i)
		t.RawSetString(v.Name(), toLua(v))
	}
	return t
}

func toLua(v data.Value) lua.LValue {
	switch v.Kind() {
	case data.KindBool:
		b, _ := data.As[bool](v)
		return lua.LBool(b)
	case data.KindString:
		s, _ := data.As[string](v)
		return lua.LString(s)
	case data.KindInvalid:
		return lua.LNil
	}
	return lua.LNumber(numeric(v))
}

func numeric(v data.Value) float64 {
	switch x := v.Interface().(type) {
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// applyTable writes the string-keyed entries of t into pkg. Existing items
// keep their kind; numbers are converted to it and other mismatches are
// skipped. Unknown names are appended in name order, integral numbers as
// int64 and the rest as float64. It returns the names that were skipped.
func applyTable(pkg *data.Package, t *lua.LTable) []string {
	var skipped, added []string
	fresh := map[string]lua.LValue{}

	t.ForEach(func(k, lv lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		name := string(key)
		idx := pkg.IndexOf(name)
		if idx < 0 {
			fresh[name] = lv
			added = append(added, name)
			return
		}
		cur, _ := pkg.Item(idx)
		next, ok := convert(cur, lv)
		if !ok {
			skipped = append(skipped, name)
			return
		}
		pkg.Replace(idx, next)
	})

	slices.Sort(added)
	for _, name := range added {
		v, ok := newValue(name, fresh[name])
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		pkg.Append(v)
	}
	slices.Sort(skipped)
	return skipped
}

// convert returns cur updated with lv, preserving cur's kind and name.
func convert(cur data.Value, lv lua.LValue) (data.Value, bool) {
	name := cur.Name()
	switch cur.Kind() {
	case data.KindBool:
		b, ok := lv.(lua.LBool)
		return data.NewValue(name, bool(b)), ok
	case data.KindString:
		s, ok := lv.(lua.LString)
		return data.NewValue(name, string(s)), ok
	}

	n, ok := lv.(lua.LNumber)
	if !ok {
		return cur, false
	}
	f := float64(n)
	if math.IsNaN(f) {
		return cur, false
	}
	switch cur.Kind() {
	case data.KindInt32:
		if f < math.MinInt32 || f > math.MaxInt32 {
			return cur, false
		}
		return data.NewValue(name, int32(f)), true
	case data.KindUint32:
		if f < 0 || f > math.MaxUint32 {
			return cur, false
		}
		return data.NewValue(name, uint32(f)), true
	case data.KindInt64:
		// float64(MaxInt64) rounds up to 2^63.
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return cur, false
		}
		return data.NewValue(name, int64(f)), true
	case data.KindUint64:
		if f < 0 || f >= math.MaxUint64 {
			return cur, false
		}
		return data.NewValue(name, uint64(f)), true
	case data.KindFloat32:
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return cur, false
		}
		return data.NewValue(name, float32(f)), true
	case data.KindFloat64:
		return data.NewValue(name, f), true
	}
	return cur, false
}

func newValue(name string, lv lua.LValue) (data.Value, bool) {
	switch x := lv.(type) {
	case lua.LBool:
		return data.NewValue(name, bool(x)), true
	case lua.LString:
		return data.NewValue(name, string(x)), true
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return data.NewValue(name, int64(f)), true
		}
		return data.NewValue(name, f), true
	}
	return data.Value{}, false
}
