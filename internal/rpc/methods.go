package rpc

import "github.com/quorum-sim/generals/internal/domain"

// Method names served on POST /rpc.
const (
	MethodGetState            = "getState"
	MethodSetState            = "setState"
	MethodSetNeighbours       = "setNeighbours"
	MethodGetFreeNeighbourIDs = "getFreeNeighbourIds"
	MethodAddNeighbours       = "addNeighbours"
	MethodRemoveNeighbour     = "removeNeighbour"
	MethodSetPrimary          = "setPrimary"
	MethodExecuteOrder        = "executeOrder"
	MethodSetPrimaryOrder     = "setPrimaryOrder"
	MethodQueryNeighbours     = "queryNeighbours"
	MethodGetOrder            = "getOrder"
)

// ─── Params ─────────────────────────────────────────────────────────────────

type setStateParams struct {
	ID    int               `json:"id"`
	State domain.FaultState `json:"state"`
}

type setNeighboursParams struct {
	Epoch   uint64          `json:"epoch"`
	Members []domain.Member `json:"members"`
}

type countParams struct {
	N int `json:"n"`
}

type idsParams struct {
	IDs []int `json:"ids"`
}

type idParams struct {
	ID int `json:"id"`
}

type orderParams struct {
	Order domain.Order `json:"order"`
}

// ─── Results ────────────────────────────────────────────────────────────────

type reportResult struct {
	Report string `json:"report"`
}

type setPrimaryResult struct {
	Report string `json:"report"`
	OK     bool   `json:"ok"`
}

type idsResult struct {
	IDs []int `json:"ids"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type voteResult struct {
	State    domain.FaultState `json:"state"`
	Majority domain.Order      `json:"majority"`
}

type orderResult struct {
	Order domain.Order `json:"order"`
}

type emptyResult struct{}
