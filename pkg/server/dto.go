package server

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/grantmike/EIPs/pkg/types"
)

// TransferRequest is the wire form of one authorization submission.
// uint256 fields are decimal strings, addresses and the nonce are
// 0x-prefixed hex, the signature is 65 bytes of hex.
type TransferRequest struct {
	Relayer       string           `json:"relayer"`
	Signature     string           `json:"signature"`
	Authorization AuthorizationDTO `json:"authorization"`
}

// AuthorizationDTO mirrors types.Authorization on the wire.
type AuthorizationDTO struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	RelayerValue string `json:"relayerValue"`
	ValidAfter   string `json:"validAfter"`
	ValidBefore  string `json:"validBefore"`
	Nonce        string `json:"nonce"`
}

// TransferResponse reports a settled submission.
type TransferResponse struct {
	RequestID  string `json:"requestId"`
	Status     string `json:"status"`
	Authorizer string `json:"authorizer"`
	Nonce      string `json:"nonce"`
}

// ErrorResponse reports a rejected submission with a machine-readable
// reason code.
type ErrorResponse struct {
	RequestID string `json:"requestId,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// AuthorizationStateResponse reports consumption state of one pair.
type AuthorizationStateResponse struct {
	Authorizer string `json:"authorizer"`
	Nonce      string `json:"nonce"`
	Consumed   bool   `json:"consumed"`
}

// BalanceResponse reports one account balance as a decimal string.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (r *TransferRequest) parse() (common.Address, *types.Authorization, []byte, error) {
	if !common.IsHexAddress(r.Relayer) {
		return common.Address{}, nil, nil, fmt.Errorf("invalid relayer address: %q", r.Relayer)
	}
	relayer := common.HexToAddress(r.Relayer)

	auth, err := r.Authorization.parse()
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("invalid signature hex: %v", err)
	}

	return relayer, auth, sig, nil
}

func (a *AuthorizationDTO) parse() (*types.Authorization, error) {
	if !common.IsHexAddress(a.From) {
		return nil, fmt.Errorf("invalid from address: %q", a.From)
	}
	if !common.IsHexAddress(a.To) {
		return nil, fmt.Errorf("invalid to address: %q", a.To)
	}

	value, err := parseUint256("value", a.Value)
	if err != nil {
		return nil, err
	}
	relayerValue, err := parseUint256("relayerValue", a.RelayerValue)
	if err != nil {
		return nil, err
	}
	validAfter, err := parseUint256("validAfter", a.ValidAfter)
	if err != nil {
		return nil, err
	}
	validBefore, err := parseUint256("validBefore", a.ValidBefore)
	if err != nil {
		return nil, err
	}

	nonce, err := types.NonceFromHex(a.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %v", err)
	}

	return &types.Authorization{
		From:         common.HexToAddress(a.From),
		To:           common.HexToAddress(a.To),
		Value:        value,
		RelayerValue: relayerValue,
		ValidAfter:   validAfter,
		ValidBefore:  validBefore,
		Nonce:        nonce,
	}, nil
}

func parseUint256(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a decimal integer, got %q", name, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must be non-negative, got %q", name, s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%s does not fit in 256 bits", name)
	}
	return v, nil
}
