package radius

import (
	"context"
	"time"

	"github.com/google/uuid"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"

	"github.com/easyisp/backend/internal/models"
)

// acctOutcome carries the reply (nil = drop) and what the event log records
type acctOutcome struct {
	reply        *radius.Packet
	kind         EventKind
	result       EventResult
	username     string
	inputOctets  int64
	outputOctets int64
}

// handleAcct materialises and maintains session rows. The NAS must not
// accumulate retry queues, so every verified request gets an
// Accounting-Response even when the store write fails; a failed write is
// logged and counted, never propagated to the wire.
func (s *Server) handleAcct(ctx context.Context, nas *models.Nas, r *radius.Packet, raw []byte) acctOutcome {
	username := rfc2865.UserName_GetString(r)
	statusType := uint32(rfc2866.AcctStatusType_Get(r))

	// A bad Message-Authenticator is dropped with no reply
	if present, ok := VerifyMessageAuthenticator(raw, nas.SecretBytes()); present && !ok {
		s.log.Warn().Str("nas", nas.IPAddress).Msg("acct drop: bad Message-Authenticator")
		return acctOutcome{kind: EventAcctUpdate, result: ResultFailure, username: username}
	}

	reply := r.Response(radius.CodeAccountingResponse)

	// A bad request authenticator still gets a reply but mutates nothing
	if !radius.IsAuthenticRequest(raw, nas.SecretBytes()) {
		s.log.Warn().Str("nas", nas.IPAddress).Str("user", username).Msg("acct: request authenticator mismatch")
		return acctOutcome{reply: reply, kind: EventAcctUpdate, result: ResultFailure, username: username}
	}

	sessionID := rfc2866.AcctSessionID_GetString(r)
	callingStationID := rfc2865.CallingStationID_GetString(r)
	sessionTime := int64(rfc2866.AcctSessionTime_Get(r))

	framedIP := ""
	if ip := rfc2865.FramedIPAddress_Get(r); ip != nil {
		framedIP = ip.String()
	}

	inputOctets := reconstruct64(
		uint32(rfc2866.AcctInputOctets_Get(r)),
		uint32(rfc2869.AcctInputGigawords_Get(r)),
	)
	outputOctets := reconstruct64(
		uint32(rfc2866.AcctOutputOctets_Get(r)),
		uint32(rfc2869.AcctOutputGigawords_Get(r)),
	)

	s.log.Debug().
		Str("user", username).
		Str("session", sessionID).
		Str("type", AcctStatusTypeName(statusType)).
		Msg("acct request")

	now := time.Now()
	out := acctOutcome{
		reply:        reply,
		result:       ResultSuccess,
		username:     username,
		inputOctets:  inputOctets,
		outputOctets: outputOctets,
	}

	switch rfc2866.AcctStatusType_Get(r) {
	case rfc2866.AcctStatusType_Value_Start:
		out.kind = EventAcctStart

		sess := &models.Session{
			SessionID:        sessionID,
			UniqueID:         uuid.NewString(),
			TenantID:         nas.TenantID,
			NasID:            nas.ID,
			Username:         username,
			FramedIPAddress:  framedIP,
			CallingStationID: callingStationID,
			StartTime:        now,
		}
		if sub, err := s.store.FindSubscriberByUsername(ctx, nas.TenantID, username); err == nil {
			sess.SubscriberID = &sub.ID
		}

		if err := s.store.UpsertSessionStart(ctx, sess); err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Msg("acct: start upsert failed")
			out.result = ResultFailure
			break
		}
		s.events.SessionOpened()

	case rfc2866.AcctStatusType_Value_InterimUpdate:
		out.kind = EventAcctUpdate

		found, err := s.store.UpdateSessionInterim(ctx, sessionID, framedIP, inputOctets, outputOctets, sessionTime)
		if err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Msg("acct: interim update failed")
			out.result = ResultFailure
			break
		}
		if !found {
			// Do not fabricate a row; the NAS will emit Stop eventually
			s.log.Info().Str("session", sessionID).Str("user", username).Msg("acct: interim for unknown session")
			break
		}

		s.checkQuotaBreach(ctx, nas, username, sessionID, inputOctets+outputOctets)

	case rfc2866.AcctStatusType_Value_Stop:
		out.kind = EventAcctStop

		cause := TerminateCauseName(uint32(rfc2866.AcctTerminateCause_Get(r)))
		found, err := s.store.CloseSession(ctx, sessionID, now, inputOctets, outputOctets, sessionTime, cause)
		if err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Msg("acct: stop failed")
			out.result = ResultFailure
			break
		}
		if found {
			s.events.SessionClosed(1)
		}

	case rfc2866.AcctStatusType_Value_AccountingOn, rfc2866.AcctStatusType_Value_AccountingOff:
		out.kind = EventAcctSweep

		closed, err := s.store.CloseAllSessionsForNas(ctx, nas.ID, now, TerminateCauseNasReboot)
		if err != nil {
			s.log.Error().Err(err).Uint("nas", nas.ID).Msg("acct: reboot sweep failed")
			out.result = ResultFailure
			break
		}
		if closed > 0 {
			s.events.SessionClosed(closed)
		}
		s.log.Info().Uint("nas", nas.ID).Int64("closed", closed).Msg("acct: NAS restart sweep")

	default:
		out.kind = EventAcctUpdate
		s.log.Debug().Uint32("type", statusType).Msg("acct: unhandled status type")
	}

	// NAS liveness is an independent write; Start upsert must not wait on it
	go func(nasID uint) {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchNas(tctx, nasID); err != nil {
			s.log.Warn().Err(err).Uint("nas", nasID).Msg("nas touch failed")
		}
	}(nas.ID)

	return out
}

// checkQuotaBreach fires an asynchronous disconnect when a session crosses
// its package data cap. One shot; the result is only logged and counted.
func (s *Server) checkQuotaBreach(ctx context.Context, nas *models.Nas, username, sessionID string, totalOctets int64) {
	sub, err := s.store.FindSubscriberByUsername(ctx, nas.TenantID, username)
	if err != nil || sub.Package == nil || sub.Package.DataCapBytes <= 0 {
		return
	}
	if totalOctets < sub.Package.DataCapBytes {
		return
	}

	s.log.Info().
		Str("user", username).
		Str("session", sessionID).
		Int64("used", totalOctets).
		Int64("cap", sub.Package.DataCapBytes).
		Msg("data cap breached, disconnecting")

	go func(nas *models.Nas) {
		cctx, cancel := context.WithTimeout(context.Background(), coaTimeout+time.Second)
		defer cancel()

		client := NewCoAClient(nas, s.log)
		result := client.Disconnect(cctx, username, sessionID)
		s.events.Record(Event{
			Kind:     EventCoADisconnect,
			Username: username,
			NasAddr:  nas.IPAddress,
			Result:   coaEventResult(result),
			TenantID: nas.TenantID,
		})
		if !result.Success {
			s.log.Warn().Str("user", username).Str("message", result.Message).Msg("quota disconnect failed")
		}
	}(s.coaNas(nas))
}

func coaEventResult(r CoAResult) EventResult {
	switch {
	case r.Success:
		return ResultSuccess
	case r.TimedOut:
		return ResultTimeout
	default:
		return ResultFailure
	}
}
