package tokens

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
)

// Responder serves token requests from replicas on the primary.
// Single responsibility: answer forwarded allocations from the primary's
// allocator.
type Responder struct {
	socket      ListenSocket
	addr        string
	allocator   Allocator
	recvTimeout time.Duration
	logger      logging.Logger

	sessionsMu sync.Mutex
	sessions   map[string]uint64 // last sequence answered per session

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// ResponderConfig configures the responder.
type ResponderConfig struct {
	Address     string
	RecvTimeout time.Duration
	Logger      logging.Logger
}

// NewResponder creates a new responder.
func NewResponder(
	factory SocketFactory,
	config ResponderConfig,
	allocator Allocator,
) (*Responder, error) {
	socket, err := factory.NewReplySocket()
	if err != nil {
		return nil, err
	}

	timeout := config.RecvTimeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Responder{
		socket:      socket,
		addr:        config.Address,
		allocator:   allocator,
		recvTimeout: timeout,
		logger:      logger.With(logging.Component("token_responder")),
		sessions:    make(map[string]uint64),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start begins serving requests.
func (r *Responder) Start() error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if r.running {
		return nil
	}

	if err := r.socket.Listen(r.addr); err != nil {
		return err
	}

	if err := r.socket.SetRecvDeadline(r.recvTimeout); err != nil {
		r.socket.Close()
		return err
	}

	r.running = true
	r.wg.Add(1)
	go r.receiveLoop()

	r.logger.Info("token responder started", logging.String("addr", r.addr))
	return nil
}

// Stop stops the responder.
func (r *Responder) Stop() error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if !r.running {
		return nil
	}

	close(r.stopCh)
	r.running = false
	r.wg.Wait()
	r.socket.Close()

	r.logger.Info("token responder stopped")
	return nil
}

func (r *Responder) receiveLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		msg, err := r.socket.Recv()
		if err != nil {
			continue // Timeout
		}

		resp := r.handle(msg)
		data, err := json.Marshal(resp)
		if err != nil {
			r.logger.Error("failed to encode token response", logging.Error(err))
			continue
		}
		if err := r.socket.Send(data); err != nil {
			r.logger.Warn("failed to send token response", logging.Error(err))
		}
	}
}

func (r *Responder) handle(msg []byte) *Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		r.logger.Warn("failed to parse token request", logging.Error(err))
		return &Response{Error: "malformed request"}
	}
	resp := &Response{Sequence: req.Sequence}

	if !r.admit(req.Session, req.Sequence) {
		r.logger.Warn("rejecting out of order token request",
			logging.String("session", req.Session),
			logging.Uint64("sequence", req.Sequence))
		resp.Error = "stale sequence"
		return resp
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.recvTimeout)
	defer cancel()

	switch req.Kind {
	case KindAllocate:
		id, err := r.allocator.Allocate(ctx, req.Name)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.ID = id
		r.logger.Debug("token allocated for replica",
			logging.String("name", req.Name),
			logging.Int("id", id),
			logging.String("session", req.Session))
	case KindList:
		tokens, err := r.allocator.Tokens(ctx)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Tokens = tokens
	default:
		resp.Error = "unknown request kind " + string(req.Kind)
	}
	return resp
}

// admit records seq for session. A retried request repeats the last
// sequence and is admitted; an older one is not.
func (r *Responder) admit(session string, seq uint64) bool {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	last, ok := r.sessions[session]
	if ok && seq < last {
		return false
	}
	r.sessions[session] = seq
	return true
}
