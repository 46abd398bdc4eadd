package rpc

import (
	"net/http"
)

type tokenBalanceParams struct {
	Address string `json:"address"`
}

type tokenTransferParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenBurnParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddressParam(w, req, "address", params.Address)
	if !ok {
		return
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load balance", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": amountString(balance)})
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenTransferParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	to, ok := parseAddressParam(w, req, "to", params.To)
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, "amount", params.Amount)
	if !ok {
		return
	}
	if err := s.node.TokenTransfer(caller, to, amount); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleTokenBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBurnParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, "amount", params.Amount)
	if !ok {
		return
	}
	if err := s.node.TokenBurn(caller, amount); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
