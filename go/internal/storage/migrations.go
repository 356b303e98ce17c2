package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/splits"
)

// legacySettingsSplits is the settings entry where version 1 kept its only run.
const legacySettingsSplits = "splits"

// Snapshot is the complete content of a local store, used as the input and
// output of schema migrations.
type Snapshot struct {
	SplitsData map[string][]byte
	SplitsInfo map[string]splits.Info
	Settings   map[string][]byte

	// Legacy is the flat legacy area. It is only read by the first migration.
	Legacy         map[string]string
	LegacyConsumed bool
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{
		SplitsData: map[string][]byte{},
		SplitsInfo: map[string]splits.Info{},
		Settings:   map[string][]byte{},
		Legacy:     map[string]string{},
	}
}

func (s Snapshot) clone() Snapshot {
	out := NewSnapshot()
	for k, v := range s.SplitsData {
		out.SplitsData[k] = bytes.Clone(v)
	}
	for k, v := range s.SplitsInfo {
		out.SplitsInfo[k] = v
	}
	for k, v := range s.Settings {
		out.Settings[k] = bytes.Clone(v)
	}
	for k, v := range s.Legacy {
		out.Legacy[k] = v
	}
	out.LegacyConsumed = s.LegacyConsumed
	return out
}

// Migration moves a snapshot from Version-1 to Version. Apply must be pure:
// the same input always yields the same output and the input is not modified.
type Migration struct {
	Version     int
	Description string
	Apply       func(Snapshot) (Snapshot, error)
}

// migrations contains all schema migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create splits containers and import the legacy key/value area",
		Apply:       importLegacyArea,
	},
	{
		Version:     2,
		Description: "Move the run kept in the settings container into splits",
		Apply:       moveSettingsSplits,
	},
}

// LatestVersion is the schema version a store is migrated to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies every migration newer than from, in order. It returns the
// migrated snapshot and the migrations that were applied.
func Migrate(snap Snapshot, from int) (Snapshot, []Migration, error) {
	var applied []Migration
	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		next, err := m.Apply(snap)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		snap = next
		applied = append(applied, m)
	}
	return snap, applied, nil
}

func importLegacyArea(in Snapshot) (Snapshot, error) {
	out := in.clone()

	if text := out.Legacy[legacySplits]; text != "" {
		blob := []byte(text)
		if info, ok := splits.ParseAndExtract(blob); ok {
			out.SplitsData["1"] = blob
			out.SplitsInfo["1"] = info
			out.Settings[string(SettingSplitsKey)] = encodeString("1")
		} else {
			log.Warn().Msg("skipping legacy splits that do not parse")
		}
	}

	if layout := out.Legacy[legacyLayout]; layout != "" {
		if json.Valid([]byte(layout)) {
			out.Settings[string(SettingLayout)] = []byte(layout)
		} else {
			log.Warn().Msg("skipping malformed legacy layout")
		}
	}

	if settings := out.Legacy[legacySettings]; settings != "" {
		var parsed struct {
			Hotkeys json.RawMessage `json:"hotkeys"`
		}
		switch err := json.Unmarshal([]byte(settings), &parsed); {
		case err != nil:
			log.Warn().Err(err).Msg("skipping malformed legacy settings")
		case len(parsed.Hotkeys) > 0 && string(parsed.Hotkeys) != "null":
			out.Settings[string(SettingHotkeys)] = []byte(parsed.Hotkeys)
		}
	}

	if width := strings.TrimSpace(out.Legacy[legacyLayoutWidth]); width != "" {
		if v, err := strconv.ParseFloat(width, 64); err == nil {
			out.Settings[string(SettingLayoutWidth)] = []byte(strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			log.Warn().Str("value", width).Msg("skipping malformed legacy layout width")
		}
	}

	out.Legacy = map[string]string{}
	out.LegacyConsumed = true
	return out, nil
}

func moveSettingsSplits(in Snapshot) (Snapshot, error) {
	blob, ok := in.Settings[legacySettingsSplits]
	if !ok {
		return in.clone(), nil
	}

	out := in.clone()
	delete(out.Settings, legacySettingsSplits)

	info, parsed := splits.ParseAndExtract(blob)
	if !parsed {
		log.Warn().Msg("dropping settings splits that do not parse")
		return out, nil
	}

	key := freeKey(out.SplitsData, blob)
	out.SplitsData[key] = bytes.Clone(blob)
	out.SplitsInfo[key] = info
	out.Settings[string(SettingSplitsKey)] = encodeString(key)
	return out, nil
}

// freeKey returns the lowest numeric key that is unused or already holds blob.
func freeKey(data map[string][]byte, blob []byte) string {
	for i := 1; ; i++ {
		key := strconv.Itoa(i)
		existing, ok := data[key]
		if !ok || bytes.Equal(existing, blob) {
			return key
		}
	}
}

func encodeString(s string) []byte {
	data, _ := json.Marshal(s)
	return data
}
