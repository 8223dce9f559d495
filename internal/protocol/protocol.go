package protocol

// Version is the protocol version number spoken by the proxy
const Version = 773

// VersionName is the release name matching Version
const VersionName = "1.21.10"

// State is the connection protocol state
type State int

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StateConfiguration
	StatePlay
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StateConfiguration:
		return "configuration"
	case StatePlay:
		return "play"
	default:
		return "unknown"
	}
}

// Kind is the kind of client detected on a fresh connection
type Kind int

const (
	// KindModern is a framed client speaking the current protocol
	KindModern Kind = iota
	// KindLegacyPing is a pre-netty server list ping (first byte 0xFE)
	KindLegacyPing
	// KindHTTP is an HTTP request sent to the game port
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindLegacyPing:
		return "legacy_ping"
	case KindHTTP:
		return "http"
	default:
		return "modern"
	}
}
