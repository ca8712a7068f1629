package domain

// ResourceOwner holds the identity attributes returned by the provider's
// resource-owner (userinfo) endpoint.
type ResourceOwner struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Name         string
	Locale       string
	HostedDomain string
	PictureURL   string
	Raw          map[string]any // Raw document as returned by the provider
}

// NewUserData is the attribute set used to create a local user record for an owner
// signing in for the first time.
type NewUserData struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Locale    string `json:"locale,omitempty"`
}

// UserData extracts the attributes for a new local user.
func (o *ResourceOwner) UserData() NewUserData {
	return NewUserData{
		FirstName: o.FirstName,
		LastName:  o.LastName,
		Email:     o.Email,
		Locale:    o.Locale,
	}
}

// AuthenticatedIdentity is the terminal value of a successful authentication.
type AuthenticatedIdentity struct {
	Username      string
	Provider      string
	Token         *OAuthToken
	Owner         *ResourceOwner
	FacadeContext any // Opaque value supplied by the host, handed back untouched
}
