package config

import "github.com/screenruster/screenruster/internal/apperror"

func configParseErr(path string, reason error) error {
	return apperror.ConfigParse{Path: path, Reason: reason}
}
