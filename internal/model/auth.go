package model

// AuthContext identifies whether the crawl runs as an anonymous visitor or
// as a logged-in user. It keys the visited set and prefixes screenshot names.
type AuthContext int

const (
	Anonymous AuthContext = iota
	Authenticated
)

// Prefix returns the screenshot file name prefix for the context.
func (a AuthContext) Prefix() string {
	if a == Authenticated {
		return "login"
	}
	return "anonymous"
}

func (a AuthContext) String() string {
	switch a {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
