package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
)

// Forwarder allocates tokens on a replica by forwarding every request to the
// primary. Single responsibility: forward token requests from replica to
// primary.
type Forwarder struct {
	socket      DialSocket
	primaryAddr string
	timeout     time.Duration
	logger      logging.Logger

	session  string
	sequence atomic.Uint64

	// A REQ socket carries one request at a time.
	reqMu sync.Mutex

	running   bool
	runningMu sync.Mutex
}

// ForwarderConfig configures the forwarder.
type ForwarderConfig struct {
	PrimaryAddr string
	Timeout     time.Duration
	Logger      logging.Logger
}

// NewForwarder creates a new forwarder with a fresh session.
func NewForwarder(
	factory SocketFactory,
	config ForwarderConfig,
) (*Forwarder, error) {
	socket, err := factory.NewRequestSocket()
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Forwarder{
		socket:      socket,
		primaryAddr: config.PrimaryAddr,
		timeout:     timeout,
		logger:      logger.With(logging.Component("token_forwarder")),
		session:     uuid.NewString(),
	}, nil
}

// Session returns the session token sent with every request.
func (f *Forwarder) Session() string {
	return f.session
}

// Start connects to the primary.
func (f *Forwarder) Start() error {
	f.runningMu.Lock()
	defer f.runningMu.Unlock()

	if f.running {
		return nil
	}

	if err := f.socket.Dial(f.primaryAddr); err != nil {
		return err
	}
	if err := f.socket.SetRecvDeadline(f.timeout); err != nil {
		f.socket.Close()
		return err
	}
	if err := f.socket.SetSendDeadline(f.timeout); err != nil {
		f.socket.Close()
		return err
	}

	f.running = true
	f.logger.Info("token forwarder connected",
		logging.String("primary", f.primaryAddr),
		logging.String("session", f.session))
	return nil
}

// Stop disconnects from the primary.
func (f *Forwarder) Stop() error {
	f.runningMu.Lock()
	defer f.runningMu.Unlock()

	if !f.running {
		return nil
	}

	f.running = false
	f.socket.Close()
	f.logger.Info("token forwarder stopped")
	return nil
}

func (f *Forwarder) isRunning() bool {
	f.runningMu.Lock()
	defer f.runningMu.Unlock()
	return f.running
}

// Allocate forwards the allocation of name to the primary.
func (f *Forwarder) Allocate(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, ErrInvalidName
	}
	resp, err := f.roundTrip(ctx, Request{Kind: KindAllocate, Name: name})
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Tokens fetches the primary's full token table.
func (f *Forwarder) Tokens(ctx context.Context) (map[string]int, error) {
	resp, err := f.roundTrip(ctx, Request{Kind: KindList})
	if err != nil {
		return nil, err
	}
	if resp.Tokens == nil {
		return map[string]int{}, nil
	}
	return resp.Tokens, nil
}

func (f *Forwarder) roundTrip(ctx context.Context, req Request) (*Response, error) {
	if !f.isRunning() {
		return nil, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.reqMu.Lock()
	defer f.reqMu.Unlock()

	req.Session = f.session
	req.Sequence = f.sequence.Add(1)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}
	if err := f.socket.Send(data); err != nil {
		return nil, fmt.Errorf("failed to send token request: %w", err)
	}
	msg, err := f.socket.Recv()
	if err != nil {
		return nil, fmt.Errorf("failed to receive token response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if resp.Sequence != req.Sequence {
		return nil, fmt.Errorf("%w: response sequence %d for request %d", ErrRemote, resp.Sequence, req.Sequence)
	}
	return &resp, nil
}

var _ Allocator = (*Forwarder)(nil)
