package protocol

// RPC method names accepted by the ops endpoint.
const (
	MethodConnect        = "connect"
	MethodHealth         = "health"
	MethodStatus         = "status"
	MethodSessionsList   = "sessions.list"
	MethodSessionsCancel = "sessions.cancel"
	MethodSessionsResume = "sessions.resume"
)
