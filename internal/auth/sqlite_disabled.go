//go:build !sqlite
// +build !sqlite

package auth

import (
	"errors"

	logx "relayd/pkg/logx"
)

func openSQLite(cfg SQLiteConfig, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite auth backend not built: build with -tags sqlite")
}
