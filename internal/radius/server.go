package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"layeh.com/radius"

	"github.com/easyisp/backend/internal/models"
	"github.com/easyisp/backend/internal/store"
)

const (
	maxDatagramSize = 4096

	// maxInFlight bounds concurrent datagram handlers so a flood cannot
	// blow up memory; excess datagrams are dropped and clients retransmit
	maxInFlight = 512

	sweepInterval = 60 * time.Second
)

// Config holds the server's listen addresses and policy switches
type Config struct {
	AuthAddr           string // e.g. ":1812"
	AcctAddr           string // e.g. ":1813"
	CoAPort            int    // outbound default when a NAS has none configured
	RequireMessageAuth bool
}

// Server owns the auth and accounting UDP listeners, the NAS secret cache,
// the rate limiter and the sweepers. One instance per process.
type Server struct {
	cfg    Config
	store  store.Store
	events *EventLog
	log    zerolog.Logger

	nasCache *nasCache
	limiter  *rateLimiter
	sem      *semaphore.Weighted

	mu       sync.Mutex
	started  bool
	authConn *net.UDPConn
	acctConn *net.UDPConn
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer wires the server from explicitly constructed dependencies
func NewServer(cfg Config, st store.Store, events *EventLog, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		events:  events,
		log:     log,
		limiter: newRateLimiter(),
		sem:     semaphore.NewWeighted(maxInFlight),
	}
	s.nasCache = newNasCache(st, events)
	return s
}

// Start binds both sockets and launches the listener and sweeper tasks.
// Starting twice is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	authConn, err := listenUDP(s.cfg.AuthAddr)
	if err != nil {
		return fmt.Errorf("bind auth port: %w", err)
	}
	acctConn, err := listenUDP(s.cfg.AcctAddr)
	if err != nil {
		authConn.Close()
		return fmt.Errorf("bind accounting port: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.authConn = authConn
	s.acctConn = acctConn
	s.cancel = cancel
	s.started = true

	s.wg.Add(3)
	go s.serve(ctx, authConn, true)
	go s.serve(ctx, acctConn, false)
	go s.sweeper(ctx)

	s.log.Info().
		Str("auth", authConn.LocalAddr().String()).
		Str("acct", acctConn.LocalAddr().String()).
		Msg("radius server started")
	return nil
}

// Stop closes the sockets and cancels the sweepers. Stopping when not
// started is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.authConn.Close()
	s.acctConn.Close()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("radius server stopped")
}

// AuthAddr returns the bound auth listener address (useful with port 0)
func (s *Server) AuthAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authConn == nil {
		return nil
	}
	return s.authConn.LocalAddr()
}

// AcctAddr returns the bound accounting listener address
func (s *Server) AcctAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acctConn == nil {
		return nil
	}
	return s.acctConn.LocalAddr()
}

// Summary exposes the aggregate view for the admin surface
func (s *Server) Summary() Summary {
	return s.events.Summary()
}

// RecentEvents exposes the event ring for the admin surface
func (s *Server) RecentEvents(n int) []Event {
	return s.events.Recent(n)
}

// InvalidateNas drops a cached NAS entry; the admin layer calls this on edits
func (s *Server) InvalidateNas(host string) {
	s.nasCache.Invalidate(host)
}

func listenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// serve reads datagrams and hands each one to a bounded worker task
func (s *Server) serve(ctx context.Context, conn *net.UDPConn, isAuth bool) {
	defer s.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("udp read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if !s.sem.TryAcquire(1) {
			s.log.Warn().Str("src", src.String()).Msg("in-flight limit reached, datagram dropped")
			continue
		}
		go func() {
			defer s.sem.Release(1)
			s.handleDatagram(ctx, conn, src, data, isAuth)
		}()
	}
}

// handleDatagram runs the dispatch pipeline for one datagram end-to-end
func (s *Server) handleDatagram(ctx context.Context, conn *net.UDPConn, src *net.UDPAddr, data []byte, isAuth bool) {
	started := time.Now()
	sourceIP := src.IP.String()

	// 1. Rate limit before any decoding
	if !s.limiter.Allow(sourceIP) {
		s.events.RateLimited(sourceIP)
		return
	}

	// 2. Cheap header gate: length sanity and expected code, no attribute
	// decoding yet
	if len(data) < 20 || int(uint16(data[2])<<8|uint16(data[3])) > len(data) {
		s.log.Debug().Str("src", sourceIP).Msg("malformed datagram dropped")
		s.recordDrop(isAuth, sourceIP, started)
		return
	}
	code := radius.Code(data[0])
	if (isAuth && code != radius.CodeAccessRequest) || (!isAuth && code != radius.CodeAccountingRequest) {
		s.log.Info().Str("src", sourceIP).Str("code", CodeName(code)).Msg("unexpected code dropped")
		s.recordDrop(isAuth, sourceIP, started)
		return
	}

	// 3. NAS lookup via cache; unknown sources never get a reply
	nas, err := s.nasCache.Lookup(ctx, sourceIP)
	if err != nil {
		if err != store.ErrNotFound {
			s.log.Error().Err(err).Str("src", sourceIP).Msg("nas lookup failed")
		} else {
			s.log.Debug().Str("src", sourceIP).Msg("datagram from unknown NAS dropped")
		}
		s.recordDrop(isAuth, sourceIP, started)
		return
	}

	// 4. Full attribute decode with the resolved secret
	packet, err := radius.Parse(data, nas.SecretBytes())
	if err != nil {
		s.log.Debug().Str("src", sourceIP).Err(err).Msg("unparseable datagram dropped")
		s.recordDrop(isAuth, sourceIP, started)
		return
	}

	// 5. Handler
	var reply *radius.Packet
	var event Event
	if isAuth {
		out := s.handleAuth(ctx, nas, packet, data)
		reply = out.reply
		event = Event{
			Kind:     EventAuthRequest,
			Username: out.username,
			Result:   out.result,
		}
	} else {
		out := s.handleAcct(ctx, nas, packet, data)
		reply = out.reply
		event = Event{
			Kind:         out.kind,
			Username:     out.username,
			Result:       out.result,
			InputOctets:  out.inputOctets,
			OutputOctets: out.outputOctets,
		}
	}

	// 6. Reply to the datagram's source address and port
	if reply != nil {
		wire, err := reply.Encode()
		if err != nil {
			s.log.Error().Err(err).Msg("reply encode failed")
		} else if _, err := conn.WriteToUDP(wire, src); err != nil {
			s.log.Warn().Err(err).Str("dst", src.String()).Msg("reply send failed")
		}
	}

	// 7. One event per datagram regardless of outcome
	event.NasAddr = sourceIP
	event.TenantID = nas.TenantID
	event.Latency = time.Since(started)
	s.events.Record(event)
}

func (s *Server) recordDrop(isAuth bool, sourceIP string, started time.Time) {
	kind := EventAuthRequest
	if !isAuth {
		kind = EventAcctUpdate
	}
	s.events.Record(Event{
		Kind:    kind,
		NasAddr: sourceIP,
		Result:  ResultFailure,
		Latency: time.Since(started),
	})
}

// sweeper evicts expired rate-limit windows and NAS cache entries and
// reconciles the active-session gauge against the store
func (s *Server) sweeper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.limiter.Sweep()
			s.nasCache.Sweep()

			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if count, err := s.store.CountActiveSessions(sctx); err == nil {
				s.events.SetActiveSessions(count)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// DisconnectByUsername terminates a subscriber's live session within a
// tenant; the admin surface exposes this procedure.
func (s *Server) DisconnectByUsername(ctx context.Context, tenantID uint, username string) CoAResult {
	sess, nas, result := s.activeSessionTarget(ctx, tenantID, username)
	if sess == nil {
		return result
	}

	res := NewCoAClient(s.coaNas(nas), s.log).Disconnect(ctx, username, sess.SessionID)
	s.events.Record(Event{
		Kind:     EventCoADisconnect,
		Username: username,
		NasAddr:  nas.IPAddress,
		Result:   coaEventResult(res),
		TenantID: tenantID,
	})
	return res
}

// ChangeRateByUsername re-parameterizes a live session's rate limit
func (s *Server) ChangeRateByUsername(ctx context.Context, tenantID uint, username, rateLimit string) CoAResult {
	sess, nas, result := s.activeSessionTarget(ctx, tenantID, username)
	if sess == nil {
		return result
	}

	res := NewCoAClient(s.coaNas(nas), s.log).ChangeRate(ctx, username, sess.SessionID, rateLimit)
	s.events.Record(Event{
		Kind:     EventCoAChange,
		Username: username,
		NasAddr:  nas.IPAddress,
		Result:   coaEventResult(res),
		TenantID: tenantID,
	})
	return res
}

// coaNas copies a NAS record, filling in the configured default CoA port
func (s *Server) coaNas(n *models.Nas) *models.Nas {
	cp := *n
	if cp.CoAPort <= 0 {
		cp.CoAPort = s.cfg.CoAPort
	}
	return &cp
}

func (s *Server) activeSessionTarget(ctx context.Context, tenantID uint, username string) (*models.Session, *models.Nas, CoAResult) {
	sess, err := s.store.FindActiveSessionByUsername(ctx, tenantID, username)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil, CoAResult{Message: "no active session"}
		}
		return nil, nil, CoAResult{Message: fmt.Sprintf("store error: %v", err)}
	}
	nas, err := s.store.FindNasByID(ctx, sess.NasID)
	if err != nil {
		return nil, nil, CoAResult{Message: "session NAS not found"}
	}
	return sess, nas, CoAResult{}
}
