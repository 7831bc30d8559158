package radius

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/easyisp/backend/internal/models"
)

// stubNas is a loopback CoA endpoint. replyCode 0 means never reply.
type stubNas struct {
	conn            net.PacketConn
	secret          string
	replyCode       radius.Code
	mutate          func(resp *radius.Packet)
	wrongIdentFirst bool
	requests        chan *radius.Packet
}

func newStubNas(t *testing.T, secret string, replyCode radius.Code, mutate func(resp *radius.Packet)) *stubNas {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("stub listen: %v", err)
	}
	s := &stubNas{
		conn:      conn,
		secret:    secret,
		replyCode: replyCode,
		mutate:    mutate,
		requests:  make(chan *radius.Packet, 8),
	}
	go s.serve()
	return s
}

func (s *stubNas) serve() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		req, err := radius.Parse(buf[:n], []byte(s.secret))
		if err != nil {
			continue
		}
		s.requests <- req

		if s.replyCode == 0 {
			continue
		}

		if s.wrongIdentFirst {
			bogus := *req
			bogus.Identifier++
			if wire, err := bogus.Response(s.replyCode).Encode(); err == nil {
				s.conn.WriteTo(wire, addr)
			}
		}

		resp := req.Response(s.replyCode)
		if s.mutate != nil {
			s.mutate(resp)
		}
		if wire, err := resp.Encode(); err == nil {
			s.conn.WriteTo(wire, addr)
		}
	}
}

func (s *stubNas) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("split stub addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (s *stubNas) close() {
	s.conn.Close()
}

func (s *stubNas) nas(t *testing.T) *models.Nas {
	host, port := s.hostPort(t)
	return &models.Nas{TenantID: 1, Name: "stub", IPAddress: host, Secret: s.secret, CoAPort: port}
}

func TestCoADisconnectACK(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeDisconnectACK, nil)
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(context.Background(), "alice", "0xABC123")
	if !result.Success {
		t.Fatalf("Disconnect failed: %q", result.Message)
	}
	if result.Message != "User disconnected" {
		t.Errorf("message = %q, want %q", result.Message, "User disconnected")
	}

	req := <-stub.requests
	if req.Code != radius.CodeDisconnectRequest {
		t.Errorf("stub saw %v, want Disconnect-Request", req.Code)
	}
	if user := rfc2865.UserName_GetString(req); user != "alice" {
		t.Errorf("User-Name = %q", user)
	}
	// MikroTik compatibility: 0x prefix stripped, lowercased
	if sid := rfc2866.AcctSessionID_GetString(req); sid != "abc123" {
		t.Errorf("Acct-Session-Id = %q, want abc123", sid)
	}
}

func TestCoAChangeRateACK(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeCoAACK, nil)
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.ChangeRate(context.Background(), "alice", "abc", "2M/8M")
	if !result.Success {
		t.Fatalf("ChangeRate failed: %q", result.Message)
	}
	if result.Message != "Rate limit updated" {
		t.Errorf("message = %q", result.Message)
	}

	req := <-stub.requests
	if req.Code != radius.CodeCoARequest {
		t.Errorf("stub saw %v, want CoA-Request", req.Code)
	}
	if rate := getVSA(req, MikrotikVendorID, MikrotikRateLimit); string(rate) != "2M/8M" {
		t.Errorf("rate VSA = %q, want 2M/8M", rate)
	}
}

func TestCoANAKWithErrorCause(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeDisconnectNAK, func(resp *radius.Packet) {
		cause := make([]byte, 4)
		binary.BigEndian.PutUint32(cause, 503)
		resp.Add(radius.Type(101), radius.Attribute(cause))
	})
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(context.Background(), "alice", "abc")
	if result.Success {
		t.Fatal("NAK must not report success")
	}
	if result.Message != "Session Context Not Found" {
		t.Errorf("message = %q, want %q", result.Message, "Session Context Not Found")
	}
}

func TestCoANAKWithoutErrorCause(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeDisconnectNAK, nil)
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(context.Background(), "alice", "abc")
	if result.Success || result.Message != "NAS rejected the request" {
		t.Errorf("result = %+v", result)
	}
}

func TestCoAUnexpectedResponseCode(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeAccessAccept, nil)
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(context.Background(), "alice", "abc")
	if result.Success {
		t.Fatal("unexpected code must not report success")
	}
	if result.Message != "unexpected response Access-Accept" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestCoATimeout(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", 0, nil) // never replies
	defer stub.close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(ctx, "alice", "abc")
	if result.Success || !result.TimedOut {
		t.Fatalf("result = %+v, want timeout", result)
	}
	if result.Message != "timed out" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestCoAMismatchedIdentifierIgnored(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", radius.CodeDisconnectACK, nil)
	stub.wrongIdentFirst = true
	defer stub.close()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(context.Background(), "alice", "abc")
	if !result.Success {
		t.Fatalf("client must skip the foreign identifier and accept the real ACK: %+v", result)
	}
}

func TestCoACancellation(t *testing.T) {
	stub := newStubNas(t, "s3cr3t", 0, nil)
	defer stub.close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	client := NewCoAClient(stub.nas(t), zerolog.Nop())
	result := client.Disconnect(ctx, "alice", "abc")
	if result.Success {
		t.Fatal("cancelled operation must not succeed")
	}
	if result.Message != "cancelled" {
		t.Errorf("message = %q, want cancelled", result.Message)
	}
}
