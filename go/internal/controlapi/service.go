// Package controlapi exposes the timer over connect-rpc and plain JSON
// endpoints. Messages are protobuf well-known types so the service needs no
// generated code.
package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mcdev12/splitkeeper/go/internal/remote"
	"github.com/mcdev12/splitkeeper/go/internal/splits"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

const TimerServiceName = "splitkeeper.v1.TimerService"

const (
	TimerServiceExecuteProcedure    = "/splitkeeper.v1.TimerService/Execute"
	TimerServiceGetStateProcedure   = "/splitkeeper.v1.TimerService/GetState"
	TimerServiceListSplitsProcedure = "/splitkeeper.v1.TimerService/ListSplits"
)

// SplitsLister is what the API needs from the storage service.
type SplitsLister interface {
	GetSplitsInfos(ctx context.Context) ([]splits.KeyedInfo, error)
}

// Service implements the TimerService RPCs.
type Service struct {
	shared *timer.SharedTimer
	splits SplitsLister
}

func NewService(shared *timer.SharedTimer, lister SplitsLister) *Service {
	return &Service{
		shared: shared,
		splits: lister,
	}
}

// Execute applies one control command line, in the same syntax the remote
// socket accepts, and returns the resulting timer state.
func (s *Service) Execute(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	line := req.Msg.GetValue()
	if !remote.Dispatch(s.shared, line) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unrecognized command %q", line))
	}
	return s.state()
}

// GetState returns a snapshot of the timer.
func (s *Service) GetState(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return s.state()
}

// ListSplits returns the summaries of all stored runs.
func (s *Service) ListSplits(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	infos, err := s.splits.GetSplitsInfos(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if infos == nil {
		infos = []splits.KeyedInfo{}
	}
	msg, err := toStruct(map[string]any{"splits": infos})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *Service) state() (*connect.Response[structpb.Struct], error) {
	snap := timer.ReadWith(s.shared, (*timer.Timer).Snapshot)
	msg, err := toStruct(snap)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return msg, nil
}

// NewTimerServiceHandler builds the HTTP handler serving every TimerService
// procedure and returns the path to mount it on.
func NewTimerServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	execute := connect.NewUnaryHandler(TimerServiceExecuteProcedure, svc.Execute, opts...)
	getState := connect.NewUnaryHandler(TimerServiceGetStateProcedure, svc.GetState, opts...)
	listSplits := connect.NewUnaryHandler(TimerServiceListSplitsProcedure, svc.ListSplits, opts...)

	return "/" + TimerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TimerServiceExecuteProcedure:
			execute.ServeHTTP(w, r)
		case TimerServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		case TimerServiceListSplitsProcedure:
			listSplits.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Client calls a TimerService over connect-rpc.
type Client struct {
	execute    *connect.Client[wrapperspb.StringValue, structpb.Struct]
	getState   *connect.Client[emptypb.Empty, structpb.Struct]
	listSplits *connect.Client[emptypb.Empty, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		execute:    connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+TimerServiceExecuteProcedure, opts...),
		getState:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+TimerServiceGetStateProcedure, opts...),
		listSplits: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+TimerServiceListSplitsProcedure, opts...),
	}
}

// ErrRejected is returned by Client.Execute when the server did not
// recognize the command.
var ErrRejected = errors.New("command rejected")

func (c *Client) Execute(ctx context.Context, line string) (*structpb.Struct, error) {
	res, err := c.execute.CallUnary(ctx, connect.NewRequest(wrapperspb.String(line)))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeInvalidArgument {
			return nil, fmt.Errorf("%w: %s", ErrRejected, line)
		}
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetState(ctx context.Context) (*structpb.Struct, error) {
	res, err := c.getState.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ListSplits(ctx context.Context) (*structpb.Struct, error) {
	res, err := c.listSplits.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func logRequest(r *http.Request) {
	log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("control api request")
}
