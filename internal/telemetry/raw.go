package telemetry

import (
	"maps"
	"slices"
)

// RawKeyBudget is the number of top-level keys kept in Event.Raw
const RawKeyBudget = 15

var rawPriorityKeys = []string{
	"EventID", "ActionType", "OperationName", "Activity", "Type",
	"TimeGenerated", "Timestamp", "Computer", "Account",
	"TargetUserName", "IpAddress", "Result", "Severity",
}

// TruncateRaw keeps a bounded echo of a source record. Priority keys are
// kept first (nested lists cut to 3 items, nested maps to 5 keys); the
// remaining budget is filled with scalar fields in key order.
func TruncateRaw(record map[string]any, budget int) map[string]any {
	if len(record) == 0 {
		return nil
	}
	out := make(map[string]any, min(budget, len(record)))

	for _, key := range rawPriorityKeys {
		if len(out) >= budget {
			break
		}
		v, ok := record[key]
		if !ok {
			continue
		}
		out[key] = shallow(v)
	}

	for _, key := range slices.Sorted(maps.Keys(record)) {
		if len(out) >= budget {
			break
		}
		if _, ok := out[key]; ok {
			continue
		}
		switch record[key].(type) {
		case map[string]any, []any:
			continue
		}
		out[key] = record[key]
	}
	return out
}

func shallow(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) > 3 {
			return t[:3]
		}
	case map[string]any:
		if len(t) > 5 {
			cut := make(map[string]any, 5)
			for _, k := range slices.Sorted(maps.Keys(t))[:5] {
				cut[k] = t[k]
			}
			return cut
		}
	}
	return v
}
