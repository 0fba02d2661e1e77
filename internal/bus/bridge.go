package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
)

// Config selects the bridge endpoints. An empty URL disables that side.
type Config struct {
	PubURL    string
	ReloadURL string
	Compress  bool
	// PollInterval bounds how long the reload loop blocks before checking
	// for cancellation.
	PollInterval time.Duration
}

// Reloader re-broadcasts the last snapshot. *state.Store satisfies it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Bridge publishes snapshots and progress, and serves reload requests.
type Bridge struct {
	cfg  Config
	log  logging.Logger
	pub  mangos.Socket
	pull mangos.Socket

	closeOnce sync.Once
}

// New opens and binds the configured sockets.
func New(cfg Config, log logging.Logger) (*Bridge, error) {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	b := &Bridge{cfg: cfg, log: log}

	if cfg.PubURL != "" {
		sock, err := pub.NewSocket()
		if err != nil {
			return nil, fmt.Errorf("failed to create PUB socket: %w", err)
		}
		if err := sock.Listen(cfg.PubURL); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("failed to bind PUB socket to %s: %w", cfg.PubURL, err)
		}
		b.pub = sock
	}
	if cfg.ReloadURL != "" {
		sock, err := pull.NewSocket()
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to create PULL socket: %w", err)
		}
		if err := sock.Listen(cfg.ReloadURL); err != nil {
			_ = sock.Close()
			_ = b.Close()
			return nil, fmt.Errorf("failed to bind PULL socket to %s: %w", cfg.ReloadURL, err)
		}
		if err := sock.SetOption(mangos.OptionRecvDeadline, cfg.PollInterval); err != nil {
			_ = sock.Close()
			_ = b.Close()
			return nil, fmt.Errorf("set reload poll interval: %w", err)
		}
		b.pull = sock
	}
	log.Info(context.Background(), "bus bridge ready",
		logging.String("pub_url", cfg.PubURL),
		logging.String("reload_url", cfg.ReloadURL),
		logging.Bool("compress", cfg.Compress),
	)
	return b, nil
}

func (b *Bridge) send(topic string, v any) error {
	if b.pub == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	if err := b.pub.Send(Encode(topic, payload, b.cfg.Compress)); err != nil {
		return fmt.Errorf("send %s: %w", topic, err)
	}
	return nil
}

// PublishSnapshot implements state.Publisher on the data topic.
func (b *Bridge) PublishSnapshot(_ context.Context, snap state.Snapshot) error {
	return b.send(TopicData, snap)
}

// ProgressSink returns a sink that re-publishes the tracker's view on the
// loading topic after every report. Place it after the tracker in a
// progress.Multi so the view already holds the report.
func (b *Bridge) ProgressSink(tr *progress.Tracker) progress.Sink {
	publish := func() {
		if err := b.send(TopicLoading, tr.View()); err != nil {
			b.log.Debug(context.Background(), "progress publish failed", logging.Err(err))
		}
	}
	return progress.Func{
		ReportFunc: func(string, float64, string) { publish() },
		TickFunc:   func(int, int) { publish() },
	}
}

// Serve answers reload requests until ctx is cancelled or the bridge is
// closed. Failed reloads are logged; the loop keeps running.
func (b *Bridge) Serve(ctx context.Context, r Reloader) error {
	if b.pull == nil {
		<-ctx.Done()
		return nil
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := b.pull.Recv()
		switch {
		case errors.Is(err, mangos.ErrRecvTimeout):
			continue
		case errors.Is(err, mangos.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("receive reload request: %w", err)
		}

		if strings.TrimSpace(string(msg)) != ReloadRequest {
			b.log.Warn(ctx, "ignoring unknown bus request", logging.Int("bytes", len(msg)))
			continue
		}
		if err := r.Reload(ctx); err != nil {
			b.log.Warn(ctx, "reload failed", logging.Err(err))
		}
	}
}

// Close releases both sockets. It is safe to call more than once.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.pub != nil {
			errs = append(errs, b.pub.Close())
		}
		if b.pull != nil {
			errs = append(errs, b.pull.Close())
		}
	})
	return errors.Join(errs...)
}

// Subscriber receives messages from a bridge's PUB socket.
type Subscriber struct {
	sock mangos.Socket
}

// Subscribe dials url and filters on topics. No topics means every topic.
func Subscribe(url string, topics ...string) (*Subscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, t := range topics {
		prefix := []byte{}
		if t != "" {
			prefix = topicPrefix(t)
		}
		if err := sock.SetOption(mangos.OptionSubscribe, prefix); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", t, err)
		}
	}
	if err := sock.Dial(url); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Subscriber{sock: sock}, nil
}

// Next waits up to timeout for a message. A zero timeout blocks.
func (s *Subscriber) Next(timeout time.Duration) (string, []byte, error) {
	if err := s.sock.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
		return "", nil, err
	}
	msg, err := s.sock.Recv()
	if err != nil {
		return "", nil, err
	}
	return Decode(msg)
}

// Close closes the socket.
func (s *Subscriber) Close() error {
	return s.sock.Close()
}

// ReloadClient pushes reload requests to a bridge.
type ReloadClient struct {
	sock mangos.Socket
}

// DialReload connects a ReloadClient to a bridge listening on url.
func DialReload(url string, timeout time.Duration) (*ReloadClient, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUSH socket: %w", err)
	}
	if timeout > 0 {
		if err := sock.SetOption(mangos.OptionSendDeadline, timeout); err != nil {
			_ = sock.Close()
			return nil, err
		}
	}
	if err := sock.Dial(url); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &ReloadClient{sock: sock}, nil
}

// Request asks the bridge to re-broadcast its last snapshot.
func (c *ReloadClient) Request() error {
	if err := c.sock.Send([]byte(ReloadRequest)); err != nil {
		return fmt.Errorf("send reload request: %w", err)
	}
	return nil
}

// Close closes the socket. Requests still queued are dropped.
func (c *ReloadClient) Close() error {
	return c.sock.Close()
}
