package repositories

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// KeyInfo is a readable description of one badger entry, used by the debug
// server and the offline inspector.
type KeyInfo struct {
	Key     string
	Kind    string
	Entity  string
	Version string
	Detail  string
}

var redactedFields = map[string]struct{}{"password_hash": {}, "salt": {}}

// Inspect describes every entry under prefix in key order.
func Inspect(db *badger.DB, prefix string) ([]KeyInfo, error) {
	var infos []KeyInfo
	err := db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefix), func(key, val []byte) error {
			infos = append(infos, Describe(string(key), val))
			return nil
		})
	})
	return infos, err
}

// Describe decodes any key written by the stores. Credentials are never
// rendered.
func Describe(key string, val []byte) KeyInfo {
	info := KeyInfo{Key: key, Kind: "raw", Detail: fmt.Sprintf("%d bytes", len(val))}
	parts := strings.SplitN(key, ":", 4)
	switch {
	case strings.HasPrefix(key, recordPrefix) && len(parts) >= 3:
		info.Kind, info.Entity = parts[1], parts[2]
		version, row, err := decodeEnvelope(val)
		if err != nil {
			info.Detail = err.Error()
			return info
		}
		info.Version = version.String()
		info.Detail = describeRow(row)
	case strings.HasPrefix(key, relationPrefix) && len(parts) == 4:
		info.Kind, info.Entity = parts[1], parts[2]
		info.Detail = parts[3] + " " + describeRow(val)
	case strings.HasPrefix(key, "idx:") && len(parts) >= 3:
		info.Kind, info.Entity = parts[1], strings.Join(parts[2:], ":")
		if id, err := uuid.FromBytes(val); err == nil {
			info.Detail = "-> " + id.String()
		} else {
			info.Detail = "-> " + string(val)
		}
	case strings.HasPrefix(key, "seq:"):
		info.Kind = "sequence"
	}
	return info
}

func describeRow(row []byte) string {
	var fields map[string]any
	if err := deserialize(row, &fields); err != nil {
		return fmt.Sprintf("undecodable row: %v", err)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		if _, redacted := redactedFields[name]; redacted {
			fmt.Fprintf(&b, "%s=***", name)
			continue
		}
		fmt.Fprintf(&b, "%s=%v", name, fields[name])
	}
	return b.String()
}
