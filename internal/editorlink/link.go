// Package editorlink forwards Execution Model observations to a remote graph
// editor over socket.io.
//
// Two events are emitted:
//
//	nodeEvalStateChanged {"uuid": "...", "state": "valid"}
//	nodeDataChanged      {"uuid": "...", "port": 3, "value": <json>, "state": "valid"}
//
// A Link is attached to a model with exec.WithObserver(link.Observe) or
// Model.Observe(link.Observe).
package editorlink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	EventStateChanged = "nodeEvalStateChanged"
	EventDataChanged  = "nodeDataChanged"
)

// DefaultConnectTimeout bounds the wait for the initial connection.
const DefaultConnectTimeout = 15 * time.Second

// DataSource resolves the value behind a NodeDataChanged event. *exec.Model
// satisfies it.
type DataSource interface {
	NodeData(uuid nodeid.NodeUUID, port nodeid.PortID) (exec.PortData, bool)
}

// Options configures Dial.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// StatePayload is the body of a nodeEvalStateChanged event.
type StatePayload struct {
	UUID  string `json:"uuid"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// DataPayload is the body of a nodeDataChanged event.
type DataPayload struct {
	UUID  string `json:"uuid"`
	Port  uint32 `json:"port"`
	Value any    `json:"value"`
	State string `json:"state"`
}

// Link publishes observation events.
type Link struct {
	emit    func(event string, payload any)
	close   func()
	source  DataSource
	logger  *slog.Logger
	sent    atomic.Int64
	dropped atomic.Int64
}

func newLink(emit func(string, any), closeFn func(), source DataSource, logger *slog.Logger) *Link {
	return &Link{emit: emit, close: closeFn, source: source, logger: logger}
}

// Dial connects to the editor and returns a link publishing to it. source may
// be nil, in which case data events carry no value.
func Dial(ctx context.Context, opts Options, source DataSource) (*Link, error) {
	logger := ctxlog.FromContext(ctx).With("component", "editorlink", "url", opts.URL)
	logger.Info("Connecting to editor...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("editor URL %q needs a scheme and host", opts.URL)
	}

	sopts := socket.DefaultOptions()
	sopts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(opts.Namespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected to editor.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	timer := time.NewTimer(DefaultConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", DefaultConnectTimeout)
	}

	emit := func(event string, payload any) { io.Emit(event, payload) }
	closeFn := func() {
		logger.Debug("Disconnecting from editor.", "sid", io.Id())
		io.Disconnect()
	}
	return newLink(emit, closeFn, source, logger), nil
}

// Observe translates one model event. Events other than state and data
// changes are ignored.
func (l *Link) Observe(ev exec.Event) {
	switch ev.Kind {
	case exec.NodeEvalStateChanged:
		l.publish(EventStateChanged, StatePayload{
			UUID:  string(ev.UUID),
			Type:  ev.TypeName,
			State: ev.State.String(),
		})
	case exec.NodeDataChanged:
		p := DataPayload{UUID: string(ev.UUID), Port: uint32(ev.Port), State: ev.State.String()}
		if l.source != nil {
			if data, ok := l.source.NodeData(ev.UUID, ev.Port); ok {
				v, err := toJSON(data.Value)
				if err != nil {
					l.dropped.Add(1)
					l.logger.Warn("Dropping data event.", "uuid", ev.UUID, "port", ev.Port, "error", err)
					return
				}
				p.Value = v
			}
		}
		l.publish(EventDataChanged, p)
	}
}

func (l *Link) publish(event string, payload any) {
	l.sent.Add(1)
	l.logger.Debug("Emitting event.", "event", event)
	l.emit(event, payload)
}

// Sent returns the number of emitted events.
func (l *Link) Sent() int64 { return l.sent.Load() }

// Dropped returns the number of events that could not be encoded.
func (l *Link) Dropped() int64 { return l.dropped.Load() }

// Close disconnects from the editor.
func (l *Link) Close() {
	if l.close != nil {
		l.close()
	}
}

// toJSON converts a port value into a JSON-compatible Go value. Absent data
// becomes nil.
func toJSON(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
