package main

import (
	"github.com/canoup/canoup/errors"
)

// Exit statuses reported to the shell.
const (
	exitOK         = 0
	exitFailure    = 1
	exitConfig     = 2
	exitRepository = 3
	exitBuild      = 4
	exitInstall    = 5
	exitLocked     = 6
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	switch errors.CodeOf(err) {
	case errors.CodeInvalidConfig:
		return exitConfig
	case errors.CodeRepository, errors.CodeNetwork:
		return exitRepository
	case errors.CodeBuildFailed:
		return exitBuild
	case errors.CodeInstallFailed:
		return exitInstall
	case errors.CodeConflict:
		return exitLocked
	default:
		return exitFailure
	}
}
