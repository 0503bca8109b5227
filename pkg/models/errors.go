package models

import "errors"

// Sentinel errors shared between the service layer and its callers so
// handlers and CLI steps can branch on the failure kind.
var (
	ErrWorkspaceNotFound      = errors.New("workspace not found")
	ErrWorkspaceExists        = errors.New("workspace already exists")
	ErrWorkspaceAlreadyActive = errors.New("workspace is already active")
	ErrWorkspaceArchived      = errors.New("workspace is archived")
	ErrWorkspaceActive        = errors.New("cannot archive the active workspace")
	ErrDefaultWorkspace       = errors.New("the default workspace cannot be archived")
	ErrProviderNotFound       = errors.New("provider endpoint not found")
	ErrProviderExists         = errors.New("provider endpoint already exists")
	ErrModelNotFound          = errors.New("model not found for provider")
	ErrPersonaNotFound        = errors.New("persona not found")
	ErrPersonaExists          = errors.New("persona already exists")
	ErrNoMuxRuleMatched       = errors.New("no matching rule found for the active workspace")
)
