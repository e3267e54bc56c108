package ir

// Version constants for the IR schema and engine.
const (
	// IRVersion is the packed table and journal schema version.
	IRVersion = "1"

	// EngineVersion is the lpsuspend engine version.
	EngineVersion = "0.1.0"
)
