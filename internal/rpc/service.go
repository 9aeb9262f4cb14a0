package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/infra/metrics"
)

// Peer is the general a Service exposes. *quorum.Node implements it.
type Peer interface {
	ID() int
	PrimaryID() int
	GetState(ctx context.Context) (string, error)
	SetState(ctx context.Context, id int, state domain.FaultState) (string, error)
	SetNeighbours(ctx context.Context, m domain.Membership) error
	AllocateFreeIDs(n int) []int
	AddNeighbours(ctx context.Context, ids []int) (string, error)
	RemoveNeighbour(ctx context.Context, id int) (string, error)
	SetPrimary(ctx context.Context, id int) (string, error)
	ExecuteOrder(ctx context.Context, order domain.Order) (string, error)
	SetPrimaryOrder(ctx context.Context, order domain.Order) bool
	QueryNeighbours(ctx context.Context) (domain.Vote, error)
	GetOrder() domain.Order
}

// Service dispatches JSON-RPC requests to a Peer.
type Service struct {
	peer Peer
	log  zerolog.Logger
}

// NewService creates a Service for peer.
func NewService(peer Peer, log zerolog.Logger) *Service {
	return &Service{peer: peer, log: log}
}

// HandleRequest is the main dispatch for a JSON-RPC 2.0 request.
// It returns a Response for requests, or nil for notifications.
func (s *Service) HandleRequest(ctx context.Context, raw []byte) *Response {
	req, errResp := ParseRequest(raw)
	if errResp != nil {
		return errResp
	}

	start := time.Now()
	resp := s.dispatch(ctx, req)

	outcome := "ok"
	ev := s.log.Debug()
	if resp.Error != nil {
		outcome = "error"
		ev = s.log.Warn()
		if isRejection(resp.Error.Code) {
			outcome = "rejected"
			ev = s.log.Info()
		}
		ev = ev.Int("code", resp.Error.Code).Str("error", resp.Error.Message)
	}
	metrics.RPCServed.WithLabelValues(req.Method, outcome).Inc()
	ev.Str("method", req.Method).Dur("took", time.Since(start)).Msg("rpc served")

	if req.ID == nil {
		return nil
	}
	return &resp
}

// dispatch routes a request to the appropriate handler.
func (s *Service) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodGetState:
		report, err := s.peer.GetState(ctx)
		return reply(req.ID, reportResult{Report: report}, err)

	case MethodSetState:
		var p setStateParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		report, err := s.peer.SetState(ctx, p.ID, p.State)
		return reply(req.ID, reportResult{Report: report}, err)

	case MethodSetNeighbours:
		var p setNeighboursParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		err := s.peer.SetNeighbours(ctx, domain.Membership{Epoch: p.Epoch, Members: p.Members})
		return reply(req.ID, emptyResult{}, err)

	case MethodGetFreeNeighbourIDs:
		var p countParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		if p.N < 0 {
			return NewErrorResponse(req.ID, domain.Reject(domain.ErrInvalidCount, "Could not add %d new generals...", p.N))
		}
		return reply(req.ID, idsResult{IDs: s.peer.AllocateFreeIDs(p.N)}, nil)

	case MethodAddNeighbours:
		var p idsParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		report, err := s.peer.AddNeighbours(ctx, p.IDs)
		return reply(req.ID, reportResult{Report: report}, err)

	case MethodRemoveNeighbour:
		var p idParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		report, err := s.peer.RemoveNeighbour(ctx, p.ID)
		return reply(req.ID, reportResult{Report: report}, err)

	case MethodSetPrimary:
		var p idParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		report, err := s.peer.SetPrimary(ctx, p.ID)
		return reply(req.ID, setPrimaryResult{Report: report, OK: err == nil}, err)

	case MethodExecuteOrder:
		var p orderParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		report, err := s.peer.ExecuteOrder(ctx, p.Order)
		return reply(req.ID, reportResult{Report: report}, err)

	case MethodSetPrimaryOrder:
		var p orderParams
		if err := decodeParams(req, &p); err != nil {
			return NewInvalidParams(req.ID, err.Error())
		}
		return reply(req.ID, okResult{OK: s.peer.SetPrimaryOrder(ctx, p.Order)}, nil)

	case MethodQueryNeighbours:
		vote, err := s.peer.QueryNeighbours(ctx)
		return reply(req.ID, voteResult{State: vote.State, Majority: vote.Majority}, err)

	case MethodGetOrder:
		return reply(req.ID, orderResult{Order: s.peer.GetOrder()}, nil)

	default:
		return NewMethodNotFound(req.ID, req.Method)
	}
}

// isRejection reports whether code is a quorum rule refusing the call
// rather than something going wrong.
func isRejection(code int) bool {
	return code <= CodeWrongRole && code >= CodeNoSuccessor
}

var errMissingParams = errors.New("missing params")

func decodeParams(req Request, v any) error {
	if len(req.Params) == 0 {
		return errMissingParams
	}
	return json.Unmarshal(req.Params, v)
}

func reply(id any, result any, err error) Response {
	if err != nil {
		return NewErrorResponse(id, err)
	}
	resp, err := NewResult(id, result)
	if err != nil {
		return NewInternalError(id, err.Error())
	}
	return resp
}
