package radius

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/easyisp/backend/internal/models"
)

func startTestServer(t *testing.T, st *fakeStore) *Server {
	t.Helper()
	s := NewServer(Config{
		AuthAddr: "127.0.0.1:0",
		AcctAddr: "127.0.0.1:0",
	}, st, NewEventLog(nil), zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func localNasFixture(st *fakeStore) {
	st.addNas(&models.Nas{
		TenantID:  1,
		Name:      "edge-1",
		IPAddress: "127.0.0.1",
		Secret:    string(testSecret),
	})
	st.addSubscriber(&models.Subscriber{
		TenantID:       1,
		Username:       "alice",
		Password:       "pw",
		ConnectionType: models.ConnectionTypePPPoE,
		Status:         models.SubscriberStatusActive,
		ExpiryDate:     time.Now().Add(time.Hour),
		Package:        &models.Package{DownloadMbps: 5, UploadMbps: 10},
	})
}

func TestServerAuthRoundTrip(t *testing.T) {
	st := newFakeStore()
	localNasFixture(st)
	s := startTestServer(t, st)

	// Starting twice is a no-op
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	req := radius.New(radius.CodeAccessRequest, testSecret)
	rfc2865.UserName_SetString(req, "alice")
	rfc2865.UserPassword_SetString(req, "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := radius.Exchange(ctx, req, s.AuthAddr().String())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.Code != radius.CodeAccessAccept {
		t.Fatalf("response code = %v, want Access-Accept", resp.Code)
	}
	if got := getVSA(resp, MikrotikVendorID, MikrotikRateLimit); string(got) != "10M/5M" {
		t.Errorf("rate limit = %q, want 10M/5M", got)
	}
}

func TestServerAcctRoundTrip(t *testing.T) {
	st := newFakeStore()
	localNasFixture(st)
	s := startTestServer(t, st)

	req := radius.New(radius.CodeAccountingRequest, testSecret)
	rfc2866.AcctStatusType_Set(req, rfc2866.AcctStatusType_Value_Start)
	rfc2866.AcctSessionID_SetString(req, "e2e-1")
	rfc2865.UserName_SetString(req, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := radius.Exchange(ctx, req, s.AcctAddr().String())
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.Code != radius.CodeAccountingResponse {
		t.Fatalf("response code = %v, want Accounting-Response", resp.Code)
	}
	if st.session("e2e-1") == nil {
		t.Error("Start did not create a session row")
	}
}

func TestServerCodeGateDropsMismatchedCode(t *testing.T) {
	st := newFakeStore()
	localNasFixture(st)
	s := startTestServer(t, st)

	// An Accounting-Request on the auth port must be dropped silently
	req := radius.New(radius.CodeAccountingRequest, testSecret)
	rfc2866.AcctStatusType_Set(req, rfc2866.AcctStatusType_Value_Start)
	rfc2866.AcctSessionID_SetString(req, "gate-1")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := radius.Exchange(ctx, req, s.AuthAddr().String()); err == nil {
		t.Fatal("mismatched code got a reply")
	}
	if st.session("gate-1") != nil {
		t.Error("mismatched code reached the handler")
	}
}

func TestServerDropsUnknownNas(t *testing.T) {
	st := newFakeStore() // no NAS rows at all
	s := startTestServer(t, st)

	req := radius.New(radius.CodeAccessRequest, testSecret)
	rfc2865.UserName_SetString(req, "alice")
	rfc2865.UserPassword_SetString(req, "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := radius.Exchange(ctx, req, s.AuthAddr().String()); err == nil {
		t.Fatal("unknown NAS got a reply")
	}
}

func TestServerSurvivesMalformedDatagram(t *testing.T) {
	st := newFakeStore()
	localNasFixture(st)
	s := startTestServer(t, st)

	conn, err := net.Dial("udp", s.AuthAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte{0x01, 0x02})
	conn.Write([]byte("definitely not radius"))

	// The server must still answer a well-formed request afterwards
	req := radius.New(radius.CodeAccessRequest, testSecret)
	rfc2865.UserName_SetString(req, "alice")
	rfc2865.UserPassword_SetString(req, "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := radius.Exchange(ctx, req, s.AuthAddr().String())
	if err != nil {
		t.Fatalf("Exchange after garbage: %v", err)
	}
	if resp.Code != radius.CodeAccessAccept {
		t.Fatalf("response code = %v", resp.Code)
	}
}

func TestServerStopIsIdempotent(t *testing.T) {
	st := newFakeStore()
	s := NewServer(Config{
		AuthAddr: "127.0.0.1:0",
		AcctAddr: "127.0.0.1:0",
	}, st, NewEventLog(nil), zerolog.Nop())

	// Stopping before starting is a no-op
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()

	// A fresh start after stop binds again
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}

func TestServerDisconnectByUsername(t *testing.T) {
	stub := newStubNas(t, string(testSecret), radius.CodeDisconnectACK, nil)
	defer stub.close()

	st := newFakeStore()
	nas := st.addNas(stub.nas(t))
	st.sessions["live-1"] = &models.Session{
		SessionID: "live-1",
		TenantID:  1,
		NasID:     nas.ID,
		Username:  "alice",
	}
	s := NewServer(Config{}, st, NewEventLog(nil), zerolog.Nop())

	result := s.DisconnectByUsername(context.Background(), 1, "alice")
	if !result.Success || result.Message != "User disconnected" {
		t.Fatalf("result = %+v", result)
	}

	// Wrong tenant: the session must be invisible
	result = s.DisconnectByUsername(context.Background(), 2, "alice")
	if result.Success || result.Message != "no active session" {
		t.Fatalf("cross-tenant disconnect = %+v", result)
	}
}
