package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"tokensale/core"
	"tokensale/core/types"
	"tokensale/crypto"
	"tokensale/native/common"
	"tokensale/native/continuous"
	"tokensale/native/sale"
	"tokensale/native/token"
)

type saleCallerParams struct {
	Caller string `json:"caller"`
}

type saleBuyParams struct {
	Caller      string `json:"caller"`
	Beneficiary string `json:"beneficiary"`
	Value       string `json:"value"`
}

type saleContributeParams struct {
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

type saleAddressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type saleBuyerRateParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Rate    string `json:"rate"`
}

type saleRateParams struct {
	Caller string `json:"caller"`
	Rate   string `json:"rate"`
}

type saleQueryParams struct {
	Address string `json:"address"`
}

type saleEventsParams struct {
	Offset int `json:"offset"`
}

type PurchaseResult struct {
	Phase       string `json:"phase"`
	Purchaser   string `json:"purchaser"`
	Beneficiary string `json:"beneficiary"`
	Value       string `json:"value"`
	Tokens      string `json:"tokens"`
	Rate        string `json:"rate"`
}

type FinalizationResult struct {
	Caller          string `json:"caller"`
	Height          uint64 `json:"height"`
	TokensSold      string `json:"tokensSold"`
	FoundationShare string `json:"foundationShare"`
	TotalSupply     string `json:"totalSupply"`
	IssuanceRate    string `json:"issuanceRate"`
	Allocator       string `json:"allocator"`
}

type StatusResult struct {
	Height       uint64              `json:"height"`
	Timestamp    uint64              `json:"timestamp"`
	Phase        string              `json:"phase"`
	Rate         string              `json:"rate"`
	Cap          string              `json:"cap"`
	WeiRaised    string              `json:"weiRaised"`
	TokensSold   string              `json:"tokensSold"`
	Issuance     string              `json:"issuance"`
	Remaining    string              `json:"remaining"`
	Started      bool                `json:"started"`
	Owner        string              `json:"owner"`
	Wallet       string              `json:"wallet"`
	Allocator    string              `json:"allocator"`
	Symbol       string              `json:"symbol"`
	TotalSupply  string              `json:"totalSupply"`
	TokenPaused  bool                `json:"tokenPaused"`
	Finalization *FinalizationResult `json:"finalization,omitempty"`
}

type EventsResult struct {
	Next   int            `json:"next"`
	Events []*types.Event `json:"events"`
}

func (s *Server) handleSaleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "sale_status takes no parameters", nil)
		return
	}
	status, err := s.node.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load sale status", err.Error())
		return
	}
	writeResult(w, req.ID, formatStatus(status))
}

func (s *Server) handleSaleRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if !decodeOptionalParams(w, req, &params) {
		return
	}
	if strings.TrimSpace(params.Address) == "" {
		status, err := s.node.Status()
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load sale status", err.Error())
			return
		}
		writeResult(w, req.ID, map[string]string{"rate": amountString(status.Rate)})
		return
	}
	addr, ok := parseAddressParam(w, req, "address", params.Address)
	if !ok {
		return
	}
	rate, err := s.node.RateFor(addr)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"rate": amountString(rate)})
}

func (s *Server) handleSaleIsWhitelisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddressParam(w, req, "address", params.Address)
	if !ok {
		return
	}
	writeResult(w, req.ID, map[string]bool{"whitelisted": s.node.IsWhitelisted(addr)})
}

func (s *Server) handleSaleEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleEventsParams
	if !decodeOptionalParams(w, req, &params) {
		return
	}
	if params.Offset < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "offset must not be negative", nil)
		return
	}
	recorded := s.node.Events(params.Offset)
	if recorded == nil {
		recorded = []*types.Event{}
	}
	writeResult(w, req.ID, EventsResult{Next: params.Offset + len(recorded), Events: recorded})
}

func (s *Server) handleSaleBuyTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleBuyParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	beneficiary, ok := parseAddressParam(w, req, "beneficiary", params.Beneficiary)
	if !ok {
		return
	}
	value, ok := parseAmountParam(w, req, "value", params.Value)
	if !ok {
		return
	}
	purchase, err := s.node.BuyTokens(caller, beneficiary, value)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPurchase(purchase))
}

func (s *Server) handleSaleContribute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleContributeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	value, ok := parseAmountParam(w, req, "value", params.Value)
	if !ok {
		return
	}
	purchase, err := s.node.Contribute(caller, value)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPurchase(purchase))
}

func (s *Server) handleSaleSetWallet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAddressAction(w, req, s.node.SetWallet)
}

func (s *Server) handleSaleAddToWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAddressAction(w, req, s.node.AddToWhitelist)
}

func (s *Server) handleSaleTransferOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAddressAction(w, req, s.node.TransferOwnership)
}

func (s *Server) handleAddressAction(w http.ResponseWriter, req *RPCRequest, action func(caller, addr [20]byte) error) {
	var params saleAddressParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	addr, ok := parseAddressParam(w, req, "address", params.Address)
	if !ok {
		return
	}
	if err := action(caller, addr); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSaleSetBuyerRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleBuyerRateParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	addr, ok := parseAddressParam(w, req, "address", params.Address)
	if !ok {
		return
	}
	rate, ok := parseAmountParam(w, req, "rate", params.Rate)
	if !ok {
		return
	}
	if err := s.node.SetBuyerRate(caller, addr, rate); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSaleFinalize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	caller, ok := s.decodeCaller(w, req)
	if !ok {
		return
	}
	record, err := s.node.Finalize(caller)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatFinalization(record))
}

func (s *Server) handleSaleBeginContinuous(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.BeginContinuousSale)
}

func (s *Server) handleSalePauseToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.PauseToken)
}

func (s *Server) handleSaleUnpauseToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleCallerAction(w, req, s.node.UnpauseToken)
}

func (s *Server) handleCallerAction(w http.ResponseWriter, req *RPCRequest, action func(caller [20]byte) error) {
	caller, ok := s.decodeCaller(w, req)
	if !ok {
		return
	}
	if err := action(caller); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSaleSetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleRateParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	rate, ok := parseAmountParam(w, req, "rate", params.Rate)
	if !ok {
		return
	}
	if err := s.node.SetRate(caller, rate); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) decodeCaller(w http.ResponseWriter, req *RPCRequest) ([20]byte, bool) {
	var params saleCallerParams
	if !decodeParams(w, req, &params) {
		return [20]byte{}, false
	}
	return parseAddressParam(w, req, "caller", params.Caller)
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func decodeOptionalParams(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) == 0 {
		return true
	}
	return decodeParams(w, req, dst)
}

func parseAddressParam(w http.ResponseWriter, req *RPCRequest, field, raw string) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid %s", field), err.Error())
		return [20]byte{}, false
	}
	return addr, true
}

// parseAmountParam accepts a non-negative base-10 integer. Positivity is left
// to the engines so their sentinels surface unchanged.
func parseAmountParam(w http.ResponseWriter, req *RPCRequest, field, raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("%s required", field), nil)
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("%s must be a non-negative integer", field), raw)
		return nil, false
	}
	return amount, true
}

// writeDomainError maps engine sentinels onto JSON-RPC codes.
func writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classifyError(err)
	writeError(w, status, id, code, err.Error(), nil)
}

func classifyError(err error) (int, int) {
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, sale.ErrInvalidValue),
		errors.Is(err, sale.ErrInvalidRate),
		errors.Is(err, sale.ErrInvalidAddress),
		errors.Is(err, sale.ErrInvalidParams),
		errors.Is(err, continuous.ErrInvalidValue),
		errors.Is(err, continuous.ErrInvalidRate),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroOwner):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, sale.ErrSaleNotActive),
		errors.Is(err, sale.ErrTooEarly),
		errors.Is(err, sale.ErrNotFinalized),
		errors.Is(err, continuous.ErrNotStarted),
		errors.Is(err, token.ErrPaused):
		return http.StatusConflict, codeSaleInactive
	case errors.Is(err, sale.ErrCapExceeded),
		errors.Is(err, common.ErrBucketExceeded),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrBalanceOverflow):
		return http.StatusConflict, codeSaleLimit
	case errors.Is(err, sale.ErrAlreadyFinalized),
		errors.Is(err, sale.ErrNotWhitelisted),
		errors.Is(err, sale.ErrWindowAlreadyOpen),
		errors.Is(err, sale.ErrRateAlreadySet),
		errors.Is(err, continuous.ErrAlreadyStarted):
		return http.StatusConflict, codeSaleConflict
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatPurchase(p *sale.Purchase) PurchaseResult {
	return PurchaseResult{
		Phase:       p.Phase,
		Purchaser:   crypto.FormatAddress(p.Purchaser),
		Beneficiary: crypto.FormatAddress(p.Beneficiary),
		Value:       amountString(p.Value),
		Tokens:      amountString(p.Tokens),
		Rate:        amountString(p.Rate),
	}
}

func formatFinalization(f *sale.Finalization) *FinalizationResult {
	if f == nil {
		return nil
	}
	return &FinalizationResult{
		Caller:          crypto.FormatAddress(f.Caller),
		Height:          f.Height,
		TokensSold:      amountString(f.TokensSold),
		FoundationShare: amountString(f.FoundationShare),
		TotalSupply:     amountString(f.TotalSupply),
		IssuanceRate:    amountString(f.IssuanceRate),
		Allocator:       crypto.FormatAddress(f.Allocator),
	}
}

func formatStatus(status *core.Status) StatusResult {
	return StatusResult{
		Height:       status.Now.Height,
		Timestamp:    status.Now.Timestamp,
		Phase:        status.Phase.String(),
		Rate:         amountString(status.Rate),
		Cap:          amountString(status.Cap),
		WeiRaised:    amountString(status.WeiRaised),
		TokensSold:   amountString(status.TokensSold),
		Issuance:     amountString(status.Issuance),
		Remaining:    amountString(status.Remaining),
		Started:      status.Started,
		Owner:        crypto.FormatAddress(status.Owner),
		Wallet:       crypto.FormatAddress(status.Wallet),
		Allocator:    crypto.FormatAddress(status.Allocator),
		Symbol:       status.Symbol,
		TotalSupply:  amountString(status.TotalSupply),
		TokenPaused:  status.TokenPaused,
		Finalization: formatFinalization(status.Finalization),
	}
}
