package rules

// Event names emitted by the built-in table.
const (
	GameJoining               = "GameJoining"
	GameJoiningEntry          = "GameJoiningEntry"
	GameJoiningPrivateServer  = "GameJoiningPrivateServer"
	GameJoiningReservedServer = "GameJoiningReservedServer"
	GameJoiningUniverse       = "GameJoiningUniverse"
	GameJoiningUDMUX          = "GameJoiningUDMUX"
	GameJoined                = "GameJoined"
	GameJoinedEntry           = "GameJoinedEntry"
	GameDisconnected          = "GameDisconnected"
	GameTeleport              = "GameTeleport"
	GameMessage               = "GameMessage"
	GameLeaving               = "GameLeaving"
)

// Default returns the built-in table for the Roblox player client log.
func Default() Table {
	return NewTable(
		NewLiteral(GameJoining, "! Joining game"),
		NewPattern(GameJoiningEntry, `! Joining game '([0-9a-f\-]{36})' place ([0-9]+) at ([0-9.]+)`),
		NewLiteral(GameJoiningPrivateServer, "[FLog::GameJoinUtil] GameJoinUtil::joinGamePostPrivateServer"),
		NewLiteral(GameJoiningReservedServer, "[FLog::GameJoinUtil] GameJoinUtil::initiateTeleportToReservedServer"),
		NewPattern(GameJoiningUniverse, `\[FLog::GameJoinLoadTime\] Report game_join_loadtime:.*universeid:([0-9]+)`),
		NewLiteral(GameJoiningUDMUX, "[FLog::Network] UDMUX Address = "),
		NewLiteral(GameJoined, "[FLog::Network] serverId:"),
		NewPattern(GameJoinedEntry, `serverId: ([0-9.]+)\|[0-9]+`),
		NewLiteral(GameDisconnected, "[FLog::Network] Time to disconnect replication data:"),
		NewLiteral(GameTeleport, "[FLog::SingleSurfaceApp] initiateTeleport"),
		NewLiteral(GameMessage, "[FLog::Output] [BloxstrapRPC]"),
		NewLiteral(GameLeaving, "[FLog::SingleSurfaceApp] leaveUGCGameInternal"),
	)
}
