package message

// RequestServerInfo is the mandatory first client message. MessageVersion is
// the client's negotiated SpecVersion proposal; the server accepts it iff
// MessageVersion <= Current (see session package for the handshake rule).
type RequestServerInfo struct {
	base
	ClientName     string
	MessageVersion SpecVersion
}

func (*RequestServerInfo) messageName() string { return "RequestServerInfo" }

// ServerInfo answers a successful RequestServerInfo handshake.
type ServerInfo struct {
	base
	MessageVersion SpecVersion
	MaxPingTime    uint32
	ServerName     string
}

func (*ServerInfo) messageName() string { return "ServerInfo" }

// Ping resets the session's watchdog deadline; see session.Session.
type Ping struct {
	base
}

func (*Ping) messageName() string { return "Ping" }
