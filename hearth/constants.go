// Package hearth holds application-wide defaults shared across packages.
package hearth

const (
	DefaultAppName    = "hearth"
	DefaultConfigPath = "/etc/hearth"

	// DefaultDataDir is where the embedded database lives unless overridden.
	DefaultDataDir      = "./data"
	DefaultDatabasePath = "./data/hearth.db"

	// DefaultModel is the language model used when neither settings nor
	// configuration select one.
	DefaultModel = "gemini-2.5-flash"

	DefaultListenAddr = ":8787"
)

// Settings keys read at construction time.
const (
	SettingAPIKey = "llm.api_key"
	SettingModel  = "llm.model"
)
