package config

// Reserved top-level keys of a raw test config.
const (
	KeyLogPath   = "logpath"
	KeyTestBed   = "testbed"
	KeyTestPaths = "testpaths"
)

// Keys injected into every expanded config.
const (
	KeyTestBedName = "name"
	KeyCLIArgs     = "cli_args"
	KeyConfigDir   = "config_dir"
	KeyRunID       = "run_id"
)

// validFilenameChars is the set of characters allowed in test bed names, which
// end up as directory names under the log path.
const validFilenameChars = "-_.abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var reservedKeys = []string{KeyTestBed, KeyLogPath, KeyTestPaths}

// controllerKeys hold device controller configs. They stay scoped to their
// test bed and are never promoted to the shared level.
var controllerKeys = []string{
	"AndroidDevice",
	"AccessPoint",
	"Attenuator",
	"IPerfServer",
	"MonsoonDevice",
	"Sniffer",
	"PacketSender",
	"Anritsu",
}

// isTestBedInternalKey reports whether a test bed key must stay in the test bed
// struct during expansion.
func isTestBedInternalKey(key string) bool {
	if key == KeyTestBedName {
		return true
	}
	for _, k := range controllerKeys {
		if k == key {
			return true
		}
	}
	return false
}
