package storage

import (
	"context"
	"fmt"
)

type Backend string

const (
	BackendFile   Backend = "xlsx"
	BackendSheets Backend = "sheets"
	BackendSQLite Backend = "sqlite"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend         Backend
	Dir             string
	SQLitePath      string
	SpreadsheetID   string
	CredentialsFile string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendSheets:
		return NewSheetsStore(ctx, opts.SpreadsheetID, opts.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", opts.Backend)
	}
}
