package radius

import (
	"context"
	"fmt"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"

	"github.com/easyisp/backend/internal/models"
	"github.com/easyisp/backend/internal/store"
)

// Reply messages. Unknown user and wrong password share one string so the
// wire never reveals which applied; the specific reason lives in logs only.
const (
	msgInvalidCredentials = "Invalid username or password"
	msgAccountSuspended   = "Account suspended"
	msgAccountDisabled    = "Account disabled"
	msgAccountExpired     = "Account expired"
	msgVoucherLocked      = "voucher locked to another device"
)

const (
	defaultIdleTimeout     = 300 // seconds
	defaultInterimInterval = 300 // seconds
)

// authOutcome is the explicit handler result: a nil reply means drop
type authOutcome struct {
	reply    *radius.Packet
	result   EventResult
	username string
	reason   string
}

// handleAuth decides Access-Accept or Access-Reject for a parsed
// Access-Request. The NAS has already been resolved from the source address
// and the packet parsed with its secret; raw is the original datagram,
// needed for Message-Authenticator verification.
func (s *Server) handleAuth(ctx context.Context, nas *models.Nas, r *radius.Packet, raw []byte) authOutcome {
	username := rfc2865.UserName_GetString(r)
	callingStationID := rfc2865.CallingStationID_GetString(r)

	s.log.Debug().
		Str("user", username).
		Str("nas", nas.IPAddress).
		Str("mac", callingStationID).
		Msg("auth request")

	// Message-Authenticator: verify when present, drop silently on mismatch
	present, ok := VerifyMessageAuthenticator(raw, nas.SecretBytes())
	if present && !ok {
		s.log.Warn().Str("nas", nas.IPAddress).Msg("auth drop: bad Message-Authenticator")
		return authOutcome{result: ResultFailure, username: username, reason: "message-authenticator mismatch"}
	}
	if s.cfg.RequireMessageAuth && !present {
		s.log.Warn().Str("nas", nas.IPAddress).Msg("auth drop: Message-Authenticator required but absent")
		return authOutcome{result: ResultFailure, username: username, reason: "message-authenticator absent"}
	}

	sub, err := s.store.FindSubscriberByUsername(ctx, nas.TenantID, username)
	if err != nil {
		if err == store.ErrNotFound {
			s.log.Info().Str("user", username).Uint("tenant", nas.TenantID).Msg("auth reject: user not found")
			return s.reject(r, username, msgInvalidCredentials, "user not found")
		}
		// Transient store failure: drop, the NAS will retransmit
		s.log.Error().Err(err).Str("user", username).Msg("auth drop: store error")
		return authOutcome{result: ResultFailure, username: username, reason: "store error"}
	}

	verified, mschapSuccess, reason := s.verifyPassword(username, sub.Password, r)
	if !verified {
		s.log.Info().Str("user", username).Str("reason", reason).Msg("auth reject: bad credentials")
		return s.reject(r, username, msgInvalidCredentials, reason)
	}

	switch sub.Status {
	case models.SubscriberStatusSuspended:
		return s.reject(r, username, msgAccountSuspended, "suspended")
	case models.SubscriberStatusDisabled:
		return s.reject(r, username, msgAccountDisabled, "disabled")
	case models.SubscriberStatusExpired:
		return s.reject(r, username, msgAccountExpired, "expired")
	}
	if sub.IsExpired() {
		return s.reject(r, username, msgAccountExpired, "expired")
	}

	// Hotspot voucher MAC binding
	if sub.ConnectionType == models.ConnectionTypeHotspot && sub.LockedMAC != "" {
		if CanonicalMAC(callingStationID) != CanonicalMAC(sub.LockedMAC) {
			s.log.Info().
				Str("user", username).
				Str("expected", sub.LockedMAC).
				Str("got", callingStationID).
				Msg("auth reject: MAC mismatch")
			return s.reject(r, username, msgVoucherLocked, "mac mismatch")
		}
	}

	response := r.Response(radius.CodeAccessAccept)
	s.buildAcceptAttributes(response, sub, mschapSuccess)

	// Last-seen write is asynchronous; last writer wins
	framedIP := ""
	if ip := rfc2865.FramedIPAddress_Get(r); ip != nil {
		framedIP = ip.String()
	}
	go func(id uint, ip, mac string) {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchSubscriberSeen(tctx, id, ip, mac); err != nil {
			s.log.Warn().Err(err).Uint("subscriber", id).Msg("last-seen update failed")
		}
	}(sub.ID, framedIP, callingStationID)

	s.log.Info().Str("user", username).Msg("auth accept")
	return authOutcome{reply: response, result: ResultSuccess, username: username}
}

// verifyPassword tries MS-CHAPv2, then CHAP, then PAP. The second return is
// the MS-CHAP2-Success payload when that method was used.
func (s *Server) verifyPassword(username, password string, r *radius.Packet) (bool, []byte, string) {
	if challenge, response := mschapChallenge(r), mschap2Response(r); len(challenge) > 0 && len(response) >= 50 {
		ok, success := verifyMSCHAP2(username, password, challenge, response)
		if !ok {
			return false, nil, "mschapv2 failed"
		}
		return true, success, ""
	}

	if chapPassword := rfc2865.CHAPPassword_Get(r); len(chapPassword) > 0 {
		challenge := rfc2865.CHAPChallenge_Get(r)
		if len(challenge) == 0 {
			challenge = r.Authenticator[:]
		}
		if !VerifyCHAP(password, chapPassword, challenge) {
			return false, nil, "chap failed"
		}
		return true, nil, ""
	}

	if pap, err := rfc2865.UserPassword_LookupString(r); err == nil {
		if pap != password {
			return false, nil, "pap failed"
		}
		return true, nil, ""
	}

	return false, nil, "no password attribute"
}

// buildAcceptAttributes attaches the service policy to an Access-Accept
func (s *Server) buildAcceptAttributes(response *radius.Packet, sub *models.Subscriber, mschapSuccess []byte) {
	rfc2865.ServiceType_Set(response, rfc2865.ServiceType_Value_FramedUser)

	if sub.ConnectionType == models.ConnectionTypePPPoE {
		rfc2865.FramedProtocol_Set(response, rfc2865.FramedProtocol_Value_PPP)
	}

	if len(mschapSuccess) > 0 {
		response.Add(rfc2865.VendorSpecific_Type, buildMicrosoftVSA(MSCHAP2SuccessType, mschapSuccess))
	}

	if pkg := sub.Package; pkg != nil {
		rateLimit := fmt.Sprintf("%dM/%dM", pkg.UploadMbps, pkg.DownloadMbps)
		if pkg.HasBurst() {
			rateLimit = fmt.Sprintf("%dM/%dM %dM/%dM 0/0 1/1 5",
				pkg.UploadMbps, pkg.DownloadMbps,
				pkg.BurstUploadMbps, pkg.BurstDownloadMbps)
		}
		response.Add(rfc2865.VendorSpecific_Type, buildMikrotikVSA(MikrotikRateLimit, []byte(rateLimit)))

		if sub.ConnectionType == models.ConnectionTypeHotspot && pkg.SessionMinutes > 0 {
			rfc2865.SessionTimeout_Set(response, rfc2865.SessionTimeout(pkg.SessionMinutes*60))
		}

		if pkg.DataCapBytes > 0 {
			low, gigawords := splitDataCap(pkg.DataCapBytes)
			response.Add(rfc2865.VendorSpecific_Type, buildMikrotikVSA(MikrotikTotalLimit, uint32Bytes(low)))
			if gigawords > 0 {
				response.Add(rfc2865.VendorSpecific_Type, buildMikrotikVSA(MikrotikTotalLimitGigawords, uint32Bytes(gigawords)))
			}
		}
	}

	rfc2865.IdleTimeout_Set(response, rfc2865.IdleTimeout(defaultIdleTimeout))
	rfc2869.AcctInterimInterval_Set(response, rfc2869.AcctInterimInterval(defaultInterimInterval))
}

func (s *Server) reject(r *radius.Packet, username, message, reason string) authOutcome {
	response := r.Response(radius.CodeAccessReject)
	rfc2865.ReplyMessage_SetString(response, message)
	return authOutcome{reply: response, result: ResultFailure, username: username, reason: reason}
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
