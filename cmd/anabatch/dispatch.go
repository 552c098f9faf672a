package main

// canonicalOrder is the sub-command table from spec.md §6, in the
// order conflicts resolve to (spec.md §8 "Sub-command prefix
// resolution"): an ambiguous prefix resolves to whichever of its
// matches appears first here, rather than erroring.
var canonicalOrder = []string{
	"list", "get", "set", "rm", "channel", "era",
	"run", "submit", "resubmit", "status", "hadd", "clean",
}

// resolvePrefix expands a possibly-abbreviated sub-command token into
// its canonical name. Cobra itself does not do prefix matching, so
// this runs once against os.Args before Execute. An exact match always
// wins outright; otherwise the first canonical name having token as a
// prefix is returned. Returns token unchanged if nothing matches (lets
// cobra produce its own "unknown command" error).
func resolvePrefix(token string) string {
	if token == "" {
		return token
	}
	for _, name := range canonicalOrder {
		if name == token {
			return name
		}
	}
	for _, name := range canonicalOrder {
		if len(token) <= len(name) && name[:len(token)] == token {
			return name
		}
	}
	return token
}
