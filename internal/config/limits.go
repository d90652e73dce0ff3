package config

import "time"

const (
	// MaxProjectNameLength is the maximum length for project names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxProjectNameLength = 255

	// MaxDocumentTitleLength is the maximum length for document titles.
	// Same column type as project names.
	MaxDocumentTitleLength = 255

	// MaxDocumentContentBytes caps PATCH bodies for document saves.
	// Grant narratives top out well under this; anything larger is
	// almost certainly a runaway client.
	MaxDocumentContentBytes = 2 << 20

	// MaxGlobalEditContentBytes caps the currentContent field on
	// global-edit requests (the whole document travels with the request).
	MaxGlobalEditContentBytes = 2 << 20

	// MaxInstructionLength caps AI prompts and global-edit instructions.
	MaxInstructionLength = 4000

	// DefaultOperationListLimit is the page size for the operations
	// registry when the client doesn't pass ?limit=.
	DefaultOperationListLimit = 20

	// MaxOperationListLimit bounds ?limit= on the operations registry.
	MaxOperationListLimit = 100

	// DefaultAutosaveDebounce is how long the autosave controller waits
	// after the last edit before issuing a write.
	DefaultAutosaveDebounce = 800 * time.Millisecond
)
