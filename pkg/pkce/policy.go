package pkce

// ClientProfile classifies a registered OAuth2 client by how it runs,
// following the application profiles of RFC 6749 section 2.1.
type ClientProfile string

const (
	ProfileWeb       ClientProfile = "web"
	ProfileNative    ClientProfile = "native"
	ProfileUserAgent ClientProfile = "user-agent-based"
	ProfileMachine   ClientProfile = "machine"
)

// Required reports whether PKCE is mandatory for a client. Public clients
// always require PKCE; native and user-agent-based (SPA) clients require
// it regardless of their authentication capability. Confidential web and
// machine clients may omit it.
func Required(profile ClientProfile, public bool) bool {
	if public {
		return true
	}
	switch profile {
	case ProfileNative, ProfileUserAgent:
		return true
	}
	return false
}
