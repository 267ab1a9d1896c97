package chainreader

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// contractClient binds one ABI to one on-chain address, mirroring the
// per-address ContractClient abstraction that ChoSanghyuk-blackholedex
// builds over ethclient.Client: an ABI bound once per contract address, used
// for view calls via eth_call.
type contractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     ethabi.ABI
}

func newContractClient(client *ethclient.Client, address common.Address, abi ethabi.ABI) *contractClient {
	return &contractClient{client: client, address: address, abi: abi}
}

// call performs a read-only eth_call against the bound contract and unpacks
// the result into a fresh slice of Go values per the ABI's output types.
func (c *contractClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chainreader: packing %s: %w", method, err)
	}

	msg := callMsg(c.address, data)
	out, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainreader: calling %s on %s: %w", method, c.address, err)
	}

	unpacked, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chainreader: unpacking %s: %w", method, err)
	}
	return unpacked, nil
}

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}
