// Package storage persists runs and settings.
//
// Runs are stored as pairs: the canonical blob under splitsData/<key> and its
// derived summary under splitsInfo/<key>. Settings are single values under a
// fixed set of names. Two tiers implement the same contract: a versioned
// local SQL store and a replicated JetStream key/value store.
package storage

import (
	"context"
	"errors"

	"github.com/mcdev12/splitkeeper/go/internal/splits"
)

var (
	// ErrNotFound is returned when a key or setting does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDriver is returned for an unsupported local driver name.
	ErrUnknownDriver = errors.New("unknown local storage driver")
)

// Setting names a stored settings value.
type Setting string

const (
	SettingLayout      Setting = "layout"
	SettingHotkeys     Setting = "hotkeys"
	SettingLayoutWidth Setting = "layoutWidth"
	SettingSplitsKey   Setting = "splitsKey"
)

// Settings lists every setting name.
var Settings = []Setting{SettingLayout, SettingHotkeys, SettingLayoutWidth, SettingSplitsKey}

// DefaultLayoutWidth is returned when no layout width is stored.
const DefaultLayoutWidth = 300

// Tier is one storage backend.
type Tier interface {
	// PutSplits writes a blob and its summary under key.
	PutSplits(ctx context.Context, key string, blob []byte, info splits.Info) error
	// GetSplits returns the blob stored under key.
	GetSplits(ctx context.Context, key string) ([]byte, error)
	// GetInfo returns the summary stored under key.
	GetInfo(ctx context.Context, key string) (splits.Info, error)
	// PutInfo overwrites the summary stored under key.
	PutInfo(ctx context.Context, key string, info splits.Info) error
	// ListInfos returns every stored summary.
	ListInfos(ctx context.Context) ([]splits.KeyedInfo, error)
	// ListKeys returns every key that has a blob.
	ListKeys(ctx context.Context) ([]string, error)
	// DeleteSplits removes the pair stored under key. Missing keys are not an error.
	DeleteSplits(ctx context.Context, key string) error
	// CopySplits duplicates the pair stored under from to the key to.
	CopySplits(ctx context.Context, from, to string) error

	PutSetting(ctx context.Context, name Setting, value []byte) error
	GetSetting(ctx context.Context, name Setting) ([]byte, error)
}
