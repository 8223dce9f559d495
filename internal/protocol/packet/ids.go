// Package packet is the protocol 773 packet catalogue: ids, schemas and typed packets.
package packet

// Handshake state
const (
	IDHandshake int32 = 0x00
)

// Status state
const (
	IDStatusRequest  int32 = 0x00
	IDStatusResponse int32 = 0x00
	IDPing           int32 = 0x01
)

// Login state
const (
	IDLoginDisconnect    int32 = 0x00
	IDEncryptionRequest  int32 = 0x01
	IDLoginSuccess       int32 = 0x02
	IDSetCompression     int32 = 0x03
	IDLoginStart         int32 = 0x00
	IDEncryptionResponse int32 = 0x01
	IDLoginAcknowledged  int32 = 0x03
)

// Configuration state
const (
	IDConfigClientInformation int32 = 0x00
	IDConfigFinish            int32 = 0x03
	IDConfigKeepAlive         int32 = 0x04
	IDConfigKnownPacks        int32 = 0x07
)

// Play state, clientbound
const (
	IDAcknowledgeBlockChange int32 = 0x04
	IDDeclareCommands        int32 = 0x10
	IDPlayDisconnect         int32 = 0x20
	IDGameStateChange        int32 = 0x26
	IDKeepAliveClientbound   int32 = 0x2b
	IDJoinGame               int32 = 0x30
	IDPlayerRemove           int32 = 0x43
	IDPlayerInfoUpdate       int32 = 0x44
	IDRespawn                int32 = 0x50
	IDSystemChat             int32 = 0x77
	IDTabListHeaderFooter    int32 = 0x78
)

// Play state, serverbound
const (
	IDChatCommand          int32 = 0x06
	IDChatCommandSigned    int32 = 0x07
	IDChatMessage          int32 = 0x08
	IDChatSessionUpdate    int32 = 0x09
	IDWindowClick          int32 = 0x11
	IDEditBook             int32 = 0x17
	IDUseEntity            int32 = 0x19
	IDKeepAliveServerbound int32 = 0x1b
	IDPlayerPosition       int32 = 0x1d
	IDPlayerPositionLook   int32 = 0x1e
	IDBlockDig             int32 = 0x28
	IDHeldItemChange       int32 = 0x34
	IDBlockPlace           int32 = 0x3f
	IDUseItem              int32 = 0x40
)

// Handshake next states
const (
	NextStateStatus   int32 = 1
	NextStateLogin    int32 = 2
	NextStateTransfer int32 = 3
)
