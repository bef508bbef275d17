package domain

// Principal is the authenticated identity handed down from the external auth
// provider. It is always passed explicitly; services never read session state.
type Principal struct {
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	ImageURL   string
}

func (p Principal) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
