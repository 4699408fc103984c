package peer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/simvar-client/internal/logging"
	"github.com/signalsfoundry/simvar-client/internal/transport"
	"github.com/signalsfoundry/simvar-client/internal/wire"
	"github.com/signalsfoundry/simvar-client/model"
)

const sendTimeout = 5 * time.Second

// schedule is the peer-side state of one data request.
type schedule struct {
	req       model.DataRequest
	last      Value
	delivered bool
	skipped   uint32
	next      time.Time
}

type session struct {
	srv  *Server
	conn transport.Conn
	ctx  context.Context
	log  logging.Logger

	// sendMu keeps a command's response and the frames it triggers together
	// on the wire.
	sendMu sync.Mutex

	mu        sync.Mutex
	hello     bool
	connected bool
	paused    bool
	clientID  string
	logLevel  model.LogLevel
	requests  map[uint32]*schedule
}

func newSession(ctx context.Context, srv *Server, conn transport.Conn) *session {
	return &session{
		srv:      srv,
		conn:     conn,
		ctx:      ctx,
		log:      srv.log,
		requests: make(map[uint32]*schedule),
	}
}

// handle processes one command. Responses go out only for commands carrying a
// token, except data requests which are always acknowledged.
func (s *session) handle(f *wire.Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if f.Command != model.CmdHello && !s.srv.enabled.Load() {
		s.log.Debug(s.ctx, "server module stopped, ignoring command", logging.String("command", f.Command.String()))
		return nil
	}

	var out outbox
	status := model.StatusOK
	resp := s.dispatch(f, &out)
	if resp != nil {
		status = resp.Status
		if f.Token != 0 || f.Command == model.CmdDataRequest {
			out.frames = append([]*wire.Frame{resp}, out.frames...)
		}
	}
	s.srv.metrics.ObserveCommand(f.Command.String(), status.String())
	return s.write(out.frames)
}

// outbox collects frames produced while handling one command. Frames queued
// here follow the response.
type outbox struct {
	frames []*wire.Frame
}

func (o *outbox) add(f *wire.Frame) {
	if f != nil {
		o.frames = append(o.frames, f)
	}
}

func (s *session) dispatch(f *wire.Frame, out *outbox) *wire.Frame {
	switch f.Command {
	case model.CmdHello:
		return s.handleHello(f)
	case model.CmdPing:
		resp := wire.ResponseTo(f, model.StatusOK)
		resp.UData = s.srv.cfg.Version
		return resp
	case model.CmdConnect:
		return s.handleConnect(f, out)
	}

	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nak(f, model.StatusNotConnected, "no server session")
	}

	switch f.Command {
	case model.CmdDisconnect:
		s.handleDisconnect(out)
		return nil
	case model.CmdLookup:
		return s.handleLookup(f)
	case model.CmdGet, model.CmdGetCreate:
		return s.handleGet(f)
	case model.CmdSet, model.CmdSetCreate:
		return s.handleSet(f)
	case model.CmdExec:
		return s.handleExec(f, out)
	case model.CmdDataRequest:
		return s.handleDataRequest(f, out)
	case model.CmdUpdate:
		return s.handleUpdate(f, out)
	case model.CmdRemove:
		s.mu.Lock()
		_, ok := s.requests[f.UData]
		delete(s.requests, f.UData)
		s.mu.Unlock()
		if !ok {
			return nak(f, model.StatusNotFound, "")
		}
		return wire.ResponseTo(f, model.StatusOK)
	case model.CmdSubscribe:
		s.mu.Lock()
		s.paused = f.UData == 0
		s.mu.Unlock()
		return wire.ResponseTo(f, model.StatusOK)
	case model.CmdSendKey:
		if err := s.srv.store.TriggerKey(int32(f.UData)); err != nil {
			return nak(f, statusFor(err), err.Error())
		}
		return wire.ResponseTo(f, model.StatusOK)
	case model.CmdLogLevel:
		if model.LogFacility(f.FData)&model.FacilityRemote != 0 {
			s.mu.Lock()
			s.logLevel = model.LogLevel(f.UData)
			s.mu.Unlock()
		}
		return wire.ResponseTo(f, model.StatusOK)
	case model.CmdList:
		out.add(s.handleList(model.LookupItemType(f.UData)))
		return wire.ResponseTo(f, model.StatusOK)
	default:
		s.remoteLog(out, model.LogWarning, "unsupported command "+f.Command.String())
		return nak(f, model.StatusInvalidParameter, "unsupported command")
	}
}

func (s *session) handleHello(f *wire.Frame) *wire.Frame {
	s.mu.Lock()
	s.hello = true
	s.clientID = f.SData
	s.log = s.srv.log.With(logging.String("client_id", f.SData))
	if f.Session != "" {
		s.ctx = logging.ContextWithSessionID(s.ctx, f.Session)
	}
	s.mu.Unlock()
	s.log.Info(s.ctx, "simulator handshake")
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.SData = s.srv.cfg.Name
	resp.Session = f.Session
	return resp
}

func (s *session) handleConnect(f *wire.Frame, out *outbox) *wire.Frame {
	s.mu.Lock()
	s.connected = true
	s.paused = false
	if f.SData != "" {
		s.clientID = f.SData
	}
	s.mu.Unlock()
	s.log.Info(s.ctx, "server session opened")
	s.remoteLog(out, model.LogInfo, "client connected")
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.UData = s.srv.cfg.Version
	return resp
}

func (s *session) handleDisconnect(out *outbox) {
	s.remoteLog(out, model.LogInfo, "client disconnected")
	s.mu.Lock()
	s.connected = false
	s.requests = make(map[uint32]*schedule)
	s.logLevel = model.LogNone
	s.mu.Unlock()
	s.log.Info(s.ctx, "server session closed")
}

func (s *session) handleLookup(f *wire.Frame) *wire.Frame {
	itemType := model.LookupItemType(f.UData)
	var (
		id  int32
		err error
	)
	if itemType == model.LookupDataRequest {
		id, err = s.lookupRequest(f.SData)
	} else {
		id, err = s.srv.store.Lookup(itemType, f.SData)
	}
	if err != nil {
		return nak(f, statusFor(err), err.Error())
	}
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.FData = float64(id)
	return resp
}

func (s *session) lookupRequest(name string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sch := range s.requests {
		if sch.req.NameOrCode == name {
			return int32(id), nil
		}
	}
	return -1, fmt.Errorf("%w: data request %q", ErrUnknownVariable, name)
}

func (s *session) handleGet(f *wire.Frame) *wire.Frame {
	if f.Variable == nil {
		return nak(f, model.StatusInvalidParameter, "variable is required")
	}
	req := *f.Variable
	var v Value
	if f.Command == model.CmdGetCreate && req.VariableType == 'L' && req.Name != "" {
		v.Num = s.srv.store.GetOrCreateLocal(req.Name, f.FData)
	} else {
		var err error
		if v, err = s.srv.store.Get(req); err != nil {
			return nak(f, statusFor(err), err.Error())
		}
	}
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.FData = v.Num
	resp.SData = v.Str
	return resp
}

func (s *session) handleSet(f *wire.Frame) *wire.Frame {
	if f.Variable == nil {
		return nak(f, model.StatusInvalidParameter, "variable is required")
	}
	req := *f.Variable
	req.CreateLocal = f.Command == model.CmdSetCreate
	if err := s.srv.store.Set(req, f.FData); err != nil {
		return nak(f, statusFor(err), err.Error())
	}
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.FData = f.FData
	return resp
}

func (s *session) handleExec(f *wire.Frame, out *outbox) *wire.Frame {
	v, err := s.srv.calc.Eval(f.SData, model.CalcResultType(f.UData))
	if err != nil {
		s.remoteLog(out, model.LogWarning, "calculator code failed: "+err.Error())
		return nak(f, statusFor(err), err.Error())
	}
	resp := wire.ResponseTo(f, model.StatusOK)
	resp.FData = v.Num
	resp.SData = v.Str
	return resp
}

func (s *session) handleDataRequest(f *wire.Frame, out *outbox) *wire.Frame {
	if f.Request == nil {
		return nak(f, model.StatusInvalidParameter, "data request is required")
	}
	req := *f.Request
	if err := req.Validate(); err != nil {
		return nak(f, model.StatusInvalidParameter, err.Error())
	}
	sch := &schedule{req: req}
	// Unknown variables are rejected before anything is registered.
	v, err := s.sample(sch)
	if err != nil {
		s.remoteLog(out, model.LogWarning, fmt.Sprintf("data request %d rejected: %v", req.RequestID, err))
		return nak(f, statusFor(err), err.Error())
	}

	s.mu.Lock()
	s.requests[req.RequestID] = sch
	var first *wire.Frame
	if req.Period != model.PeriodNever {
		now := s.srv.clock.Now()
		sch.next = now.Add(sch.period())
		first = sch.frame(v, now)
	}
	s.mu.Unlock()

	s.log.Debug(s.ctx, "data request registered",
		logging.Uint32("request_id", req.RequestID),
		logging.String("period", req.Period.String()),
	)
	out.add(first)
	return wire.ResponseTo(f, model.StatusOK)
}

func (s *session) handleUpdate(f *wire.Frame, out *outbox) *wire.Frame {
	s.mu.Lock()
	sch, ok := s.requests[f.UData]
	var data *wire.Frame
	if ok {
		data = s.deliverLocked(sch, s.srv.clock.Now(), true)
	}
	s.mu.Unlock()
	if !ok {
		return nak(f, model.StatusNotFound, fmt.Sprintf("data request %d", f.UData))
	}
	out.add(data)
	return wire.ResponseTo(f, model.StatusOK)
}

func (s *session) handleList(itemType model.LookupItemType) *wire.Frame {
	list := &wire.Frame{Type: wire.FrameList, UData: uint32(itemType), Status: model.StatusOK}
	if itemType == model.LookupDataRequest {
		s.mu.Lock()
		for id, sch := range s.requests {
			list.Items = append(list.Items, model.ListItem{ID: int32(id), Name: sch.req.NameOrCode})
		}
		s.mu.Unlock()
		slices.SortFunc(list.Items, func(a, b model.ListItem) int { return cmp.Compare(a.ID, b.ID) })
		return list
	}
	items, err := s.srv.store.List(itemType)
	if err != nil {
		list.Status = statusFor(err)
		return list
	}
	list.Items = items
	return list
}

// tick runs the scheduled deliveries that are due at now.
func (s *session) tick(now time.Time, visualFrame bool) {
	s.mu.Lock()
	if !s.connected || s.paused || len(s.requests) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]uint32, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var frames []*wire.Frame
	for _, id := range ids {
		sch := s.requests[id]
		if !sch.due(now, visualFrame) {
			continue
		}
		if f := s.deliverLocked(sch, now, false); f != nil {
			frames = append(frames, f)
		}
	}
	s.mu.Unlock()

	if len(frames) == 0 {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.write(frames); err != nil {
		ctx, log := s.logger()
		log.Debug(ctx, "scheduled delivery failed", logging.Err(err))
	}
}

func (sch *schedule) period() time.Duration {
	switch sch.req.Period {
	case model.PeriodSecond:
		return time.Duration(sch.req.Interval+1) * time.Second
	case model.PeriodMillisecond:
		return time.Duration(sch.req.Interval) * time.Millisecond
	default:
		return 0
	}
}

// due advances the request's clock and reports whether a delivery is owed.
func (sch *schedule) due(now time.Time, visualFrame bool) bool {
	switch sch.req.Period {
	case model.PeriodTick, model.PeriodVisualFrame:
		if sch.req.Period == model.PeriodVisualFrame && !visualFrame {
			return false
		}
		if sch.skipped < sch.req.Interval {
			sch.skipped++
			return false
		}
		sch.skipped = 0
		return true
	case model.PeriodSecond, model.PeriodMillisecond:
		if now.Before(sch.next) {
			return false
		}
		sch.next = sch.next.Add(sch.period())
		if sch.next.Before(now) {
			sch.next = now.Add(sch.period())
		}
		return true
	default:
		return false
	}
}

// deliverLocked samples the request and builds its data frame. Unforced
// deliveries are dropped when the value moved less than the request's delta
// epsilon since the last delivered value.
func (s *session) deliverLocked(sch *schedule, now time.Time, force bool) *wire.Frame {
	v, err := s.sample(sch)
	if err != nil {
		s.log.Debug(s.ctx, "data request sample failed",
			logging.Uint32("request_id", sch.req.RequestID), logging.Err(err))
		return nil
	}
	if !force && sch.delivered && !changed(sch.last, v, sch.req.DeltaEpsilon) {
		return nil
	}
	return sch.frame(v, now)
}

// frame records v as the last delivered value and encodes it.
func (sch *schedule) frame(v Value, now time.Time) *wire.Frame {
	sch.last, sch.delivered = v, true
	return &wire.Frame{
		Type:  wire.FrameData,
		Token: sch.req.RequestID,
		Time:  now,
		Raw:   model.EncodeValue(sch.req.Kind(), sch.req.ByteSize(), v.Num, v.Str),
	}
}

func changed(last, v Value, epsilon float32) bool {
	if epsilon < 0 {
		return true
	}
	if last.IsString || v.IsString {
		return last.Str != v.Str
	}
	delta := math.Abs(v.Num - last.Num)
	if epsilon == 0 {
		return delta != 0
	}
	return delta >= float64(epsilon)
}

func (s *session) sample(sch *schedule) (Value, error) {
	req := sch.req
	if req.RequestType == model.RequestCalculated {
		return s.srv.calc.Eval(req.NameOrCode, req.CalcResultType)
	}
	return s.srv.store.Get(model.VariableRequest{
		VariableType: req.VariableType,
		Name:         req.NameOrCode,
		Unit:         req.Unit,
		SimVarIndex:  req.SimVarIndex,
		VariableID:   -1,
	})
}

func (s *session) shutdown(ctx context.Context, reason string) {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.requests = make(map[uint32]*schedule)
	s.mu.Unlock()
	if !was {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	notice := &wire.Frame{Type: wire.FrameNotice, Command: model.CmdShutdown, SData: reason}
	if err := s.conn.Send(ctx, notice); err != nil {
		_, log := s.logger()
		log.Debug(ctx, "shutdown notice not sent", logging.Err(err))
	}
}

// logger returns the session's context and logger for use off the read loop.
func (s *session) logger() (context.Context, logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx, s.log
}

// remoteLog queues a log frame when the client asked for remote logging at
// level or above.
func (s *session) remoteLog(out *outbox, level model.LogLevel, msg string) {
	s.mu.Lock()
	allowed := s.logLevel.Allows(level)
	s.mu.Unlock()
	if !allowed {
		return
	}
	out.add(&wire.Frame{Type: wire.FrameLog, UData: uint32(level), SData: msg, Time: time.Now()})
}

// write sends frames in order; sendMu must be held.
func (s *session) write(frames []*wire.Frame) error {
	base, _ := s.logger()
	ctx, cancel := context.WithTimeout(base, sendTimeout)
	defer cancel()
	data := 0
	for _, f := range frames {
		if err := s.conn.Send(ctx, f); err != nil {
			s.srv.metrics.AddDataFrames(data)
			return err
		}
		if f.Type == wire.FrameData {
			data++
		}
	}
	s.srv.metrics.AddDataFrames(data)
	return nil
}

func nak(f *wire.Frame, status model.Status, reason string) *wire.Frame {
	resp := wire.ResponseTo(f, status)
	resp.SData = reason
	return resp
}

func statusFor(err error) model.Status {
	switch {
	case errors.Is(err, ErrUnknownVariable):
		return model.StatusNotFound
	case errors.Is(err, ErrCalcSyntax), errors.Is(err, ErrUnsupported):
		return model.StatusInvalidParameter
	default:
		return model.StatusRejected
	}
}
