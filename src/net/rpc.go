package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response Message
	Error    error
}

// RPC is a message received from a peer. From is the remote address of the
// connection it arrived on. RespChan is nil for messages that are not
// answered.
type RPC struct {
	From     string
	Command  Message
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both. It does nothing
// for messages that do not expect an answer.
func (r *RPC) Respond(resp Message, err error) {
	if r.RespChan == nil {
		return
	}
	r.RespChan <- RPCResponse{resp, err}
}

// replyFor turns a response into the message sent back on the wire.
func replyFor(resp RPCResponse) Message {
	switch {
	case resp.Error != nil:
		return &Reject{Reason: resp.Error.Error()}
	case resp.Response == nil:
		return &Reject{Reason: "no response"}
	default:
		return resp.Response
	}
}
