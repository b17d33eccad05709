package structured

import (
	"github.com/tidwall/gjson"
)

// LedgerUpdate is a curator-authored delta for the shared context ledger:
// one payload object per target section plus free-form patch notes.
type LedgerUpdate struct {
	Entries    map[string]map[string]any `json:"entries"`
	PatchNotes []string                  `json:"patch_notes"`
	RawText    string                    `json:"raw_text"`
}

// ParseLedgerUpdate decodes a ledger authoring reply. The entries key is
// mandatory; replies without it fail so the caller can fall back to the
// unauthored stage payload. Scalar or array section values are wrapped
// under a "value" key to keep every entry an object.
func ParseLedgerUpdate(raw string) (LedgerUpdate, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		return LedgerUpdate{RawText: raw}, StatusFailed
	}
	root := gjson.Parse(obj)
	entries := root.Get("entries")
	if !entries.Exists() || !entries.IsObject() {
		return LedgerUpdate{RawText: raw}, StatusFailed
	}

	update := LedgerUpdate{
		Entries:    make(map[string]map[string]any),
		PatchNotes: stringSlice(root.Get("patch_notes")),
		RawText:    raw,
	}
	status := StatusSuccess
	entries.ForEach(func(key, value gjson.Result) bool {
		if m, ok := value.Value().(map[string]any); ok {
			update.Entries[key.String()] = m
			return true
		}
		update.Entries[key.String()] = map[string]any{"value": value.Value()}
		status = StatusDegraded
		return true
	})
	if len(update.Entries) == 0 {
		return LedgerUpdate{RawText: raw}, StatusFailed
	}
	return update, status
}
