// Package script runs Lua plugins as broker producers and receivers.
//
// A producer script defines
//
//	function produce(items, param)
//	  items.x = items.x + 1
//	end
//
// and is driven by a timer. items maps item names to values; the function
// either edits it in place or returns a table of updates. Existing items
// keep their kind and new names are appended.
//
// A receiver script defines
//
//	function receive(group, name, items, param)
//	  print(group .. "/" .. name, items.x)
//	end
//
// Scripts run with the base, table, string and math libraries only.
package script
