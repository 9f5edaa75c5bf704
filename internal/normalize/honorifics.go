package normalize

// defaultHonorifics are whole-token titles dropped during normalization.
// Entries must already be case folded.
var defaultHonorifics = []string{
	"mr", "mrs", "ms", "miss", "mx",
	"dr", "prof", "sir", "dame", "lady", "lord",
	"sheikh", "shaikh", "sheik", "imam", "mullah", "ayatollah", "haji", "hajji",
	"hon", "rev", "gen", "col", "capt", "maj", "lt",
	"господин", "госпожа",
}
