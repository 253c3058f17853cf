package net

import (
	"errors"
	"testing"
	"time"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/common"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport("")
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, 2*time.Second, common.NewTestEntry(t, common.TestLogLevel))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

// connectTestTransports returns the address trans2 should use to reach trans1.
func connectTestTransports(ttype int, trans1, trans2 Transport) string {
	if ttype == INMEM {
		itrans1 := trans1.(*InmemTransport)
		itrans2 := trans2.(*InmemTransport)
		itrans1.Connect(itrans2.LocalAddr(), itrans2)
		itrans2.Connect(itrans1.LocalAddr(), itrans1)
	}
	return trans1.AdvertiseAddr()
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Request(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		signer := testSigner(t)
		block := testBlock(t, signer, 1)

		args := SyncRequest{
			FromHeight: 1,
			Limit:      20,
		}

		// Listen for a request
		go func() {
			select {
			case rpc := <-rpcCh:
				req, ok := rpc.Command.(*SyncRequest)
				if !ok || *req != args {
					t.Errorf("command mismatch: %#v %#v", rpc.Command, args)
				}
				rpc.Respond(&SyncResponse{Blocks: []*chain.Block{block}}, nil)
			case <-time.After(time.Second):
				t.Errorf("timeout")
			}
		}()

		// Transport 2 makes outbound request
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		target := connectTestTransports(ttype, trans1, trans2)

		resp, err := trans2.Request(target, &args)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		out, ok := resp.(*SyncResponse)
		if !ok || len(out.Blocks) != 1 {
			t.Fatalf("bad response: %#v", resp)
		}
		if out.Blocks[0].Hex() != block.Hex() {
			t.Fatalf("block mismatch")
		}
	}
}

func TestTransport_Reject(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		go func() {
			rpc := <-rpcCh
			rpc.Respond(nil, errors.New("incompatible version"))
		}()

		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		target := connectTestTransports(ttype, trans1, trans2)

		_, err := trans2.Request(target, &Handshake{Version: "9.0"})
		rerr, ok := err.(*RejectedError)
		if !ok {
			t.Fatalf("expected RejectedError, got %v", err)
		}
		if rerr.Reason != "incompatible version" {
			t.Fatalf("wrong reason: %s", rerr.Reason)
		}
	}
}

func TestTransport_Send(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		target := connectTestTransports(ttype, trans1, trans2)

		signer := testSigner(t)
		txs := []*TxAnnounce{
			{Transaction: testTransaction(t, signer)},
			{Transaction: testTransaction(t, signer)},
		}

		for _, m := range txs {
			if err := trans2.Send(target, m); err != nil {
				t.Fatalf("err: %v", err)
			}
		}

		for _, m := range txs {
			select {
			case rpc := <-rpcCh:
				if rpc.RespChan != nil {
					t.Fatalf("announcements do not expect an answer")
				}
				got := rpc.Command.(*TxAnnounce).Transaction
				if got.Hex() != m.Transaction.Hex() {
					t.Fatalf("transaction mismatch")
				}
			case <-time.After(time.Second):
				t.Fatalf("timeout")
			}
		}
	}
}

func TestTransport_Unreachable(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans.Close()

		// nothing listens on port 1 and no inmem route exists
		err := trans.Send("127.0.0.1:1", &Reject{Reason: "x"})
		if !IsPeerUnreachable(err) {
			t.Fatalf("expected PeerUnreachableError, got %v", err)
		}
	}
}

func TestTransport_Closed(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()
		target := connectTestTransports(ttype, trans1, trans2)

		trans1.Close()

		_, err := trans2.Request(target, &Handshake{Version: ProtocolVersion})
		if err == nil {
			t.Fatalf("request to a closed transport should fail")
		}
	}
}
