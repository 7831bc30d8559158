package radius

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/easyisp/backend/internal/models"
)

const coaTimeout = 5 * time.Second

// CoAResult is the outcome reported to the administrative caller
type CoAResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TimedOut   bool   `json:"-"`
	ErrorCause string `json:"error_cause,omitempty"`
}

// CoAClient sends Change-of-Authorization packets to one NAS. Each send owns
// an ephemeral socket with a single outstanding request.
type CoAClient struct {
	nas *models.Nas
	log zerolog.Logger
}

// NewCoAClient creates a client bound to a NAS record
func NewCoAClient(nas *models.Nas, log zerolog.Logger) *CoAClient {
	return &CoAClient{nas: nas, log: log}
}

// cleanSessionID strips a 0x prefix and lowercases the id. MikroTik requires
// the lowercase form for CoA to match the session.
func cleanSessionID(sessionID string) string {
	if strings.HasPrefix(sessionID, "0x") || strings.HasPrefix(sessionID, "0X") {
		sessionID = sessionID[2:]
	}
	return strings.ToLower(sessionID)
}

// Disconnect sends a Disconnect-Request to terminate a session
func (c *CoAClient) Disconnect(ctx context.Context, username, sessionID string) CoAResult {
	packet := radius.New(radius.CodeDisconnectRequest, c.nas.SecretBytes())
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return CoAResult{Message: fmt.Sprintf("failed to set User-Name: %v", err)}
	}
	if sid := cleanSessionID(sessionID); sid != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, sid); err != nil {
			return CoAResult{Message: fmt.Sprintf("failed to set Acct-Session-Id: %v", err)}
		}
	}

	c.log.Info().
		Str("nas", c.nas.IPAddress).
		Str("user", username).
		Str("session", sessionID).
		Msg("coa: sending disconnect")

	result := c.exchange(ctx, packet, radius.CodeDisconnectACK, radius.CodeDisconnectNAK)
	if result.Success {
		result.Message = "User disconnected"
	}
	return result
}

// ChangeRate sends a CoA-Request replacing the session's rate limit
func (c *CoAClient) ChangeRate(ctx context.Context, username, sessionID, rateLimit string) CoAResult {
	packet := radius.New(radius.CodeCoARequest, c.nas.SecretBytes())
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return CoAResult{Message: fmt.Sprintf("failed to set User-Name: %v", err)}
	}
	if sid := cleanSessionID(sessionID); sid != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, sid); err != nil {
			return CoAResult{Message: fmt.Sprintf("failed to set Acct-Session-Id: %v", err)}
		}
	}

	// MikroTik expects these alongside the rate VSA on an in-session change
	rfc2866.AcctStatusType_Set(packet, 48)
	rfc2866.AcctDelayTime_Set(packet, 48)
	rfc2866.AcctInputOctets_Set(packet, 48)

	packet.Add(rfc2865.VendorSpecific_Type, buildMikrotikVSA(MikrotikRateLimit, []byte(rateLimit)))

	c.log.Info().
		Str("nas", c.nas.IPAddress).
		Str("user", username).
		Str("rate", rateLimit).
		Msg("coa: sending rate change")

	result := c.exchange(ctx, packet, radius.CodeCoAACK, radius.CodeCoANAK)
	if result.Success {
		result.Message = "Rate limit updated"
	}
	return result
}

// exchange sends the request once and waits for a matching reply until the
// deadline. Replies with a foreign identifier or a bad response
// authenticator are ignored. Cancelling ctx closes the socket; a late reply
// is then dropped.
func (c *CoAClient) exchange(ctx context.Context, packet *radius.Packet, ackCode, nakCode radius.Code) CoAResult {
	host, port := c.nas.CoAAddr()
	addr := fmt.Sprintf("%s:%d", host, port)

	wire, err := packet.Encode()
	if err != nil {
		return CoAResult{Message: fmt.Sprintf("failed to encode packet: %v", err)}
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return CoAResult{Message: fmt.Sprintf("failed to connect to NAS: %v", err)}
	}
	defer conn.Close()

	deadline := time.Now().Add(coaTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if _, err := conn.Write(wire); err != nil {
		return CoAResult{Message: fmt.Sprintf("failed to send request: %v", err)}
	}

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return CoAResult{Message: "cancelled"}
			}
			var netErr net.Error
			if (errors.As(err, &netErr) && netErr.Timeout()) ||
				errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
				return CoAResult{TimedOut: true, Message: "timed out"}
			}
			return CoAResult{Message: fmt.Sprintf("failed to read response: %v", err)}
		}

		response, err := radius.Parse(buf[:n], c.nas.SecretBytes())
		if err != nil {
			c.log.Debug().Str("nas", addr).Msg("coa: unparseable reply ignored")
			continue
		}
		if response.Identifier != packet.Identifier {
			c.log.Debug().
				Uint8("got", uint8(response.Identifier)).
				Uint8("want", uint8(packet.Identifier)).
				Msg("coa: reply identifier mismatch ignored")
			continue
		}
		if !radius.IsAuthenticResponse(buf[:n], wire, c.nas.SecretBytes()) {
			c.log.Warn().Str("nas", addr).Msg("coa: reply authenticator mismatch ignored")
			continue
		}

		switch response.Code {
		case ackCode:
			return CoAResult{Success: true}
		case nakCode:
			result := CoAResult{Message: "NAS rejected the request"}
			if cause, ok := errorCauseOf(response); ok {
				result.ErrorCause = ErrorCauseName(cause)
				result.Message = result.ErrorCause
			}
			return result
		default:
			return CoAResult{Message: fmt.Sprintf("unexpected response %s", CodeName(response.Code))}
		}
	}
}

// errorCauseOf reads the RFC 5176 Error-Cause attribute (type 101)
func errorCauseOf(p *radius.Packet) (uint32, bool) {
	for _, attr := range p.Attributes {
		if attr.Type == 101 && len(attr.Attribute) == 4 {
			return binary.BigEndian.Uint32(attr.Attribute), true
		}
	}
	return 0, false
}
