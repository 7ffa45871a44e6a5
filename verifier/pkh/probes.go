package pkh

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Probe method names reported in verification results.
const (
	MethodOwner         = "owner()"
	MethodAdmin         = "admin()"
	MethodProxyAdmin    = "eip1967-proxy-admin"
	MethodAccessControl = "access-control-admin-role"
)

// eip1967AdminSlot is keccak256("eip1967.proxy.admin") - 1, the well-known
// storage location of an upgradeable proxy's admin address.
var eip1967AdminSlot = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")

const probeABIJSON = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"type":"bytes32"},{"type":"address"}],"outputs":[{"type":"bool"}]}
]`

var probeABI = mustParseABI(probeABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// A probe is one on-chain ownership check. A false match with a nil error
// means the contract answered but the wallet does not control it; any error
// is treated by the prober as "no match" and the next probe runs.
type probe interface {
	name() string
	attempt(ctx context.Context, client EVMClient, contract, wallet common.Address) (bool, error)
}

// orderedProbes returns the full probe chain in its fixed execution order.
func orderedProbes() []probe {
	return []probe{
		addressGetterProbe{method: "owner", label: MethodOwner},
		addressGetterProbe{method: "admin", label: MethodAdmin},
		proxyAdminProbe{},
		accessControlProbe{},
	}
}

// addressGetterProbe calls a zero-argument view function returning the
// controlling address.
type addressGetterProbe struct {
	method string
	label  string
}

func (p addressGetterProbe) name() string { return p.label }

func (p addressGetterProbe) attempt(ctx context.Context, client EVMClient, contract, wallet common.Address) (bool, error) {
	data, err := probeABI.Pack(p.method)
	if err != nil {
		return false, err
	}
	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return false, err
	}
	values, err := probeABI.Unpack(p.method, output)
	if err != nil {
		return false, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return false, fmt.Errorf("pkh: %s returned non-address value", p.method)
	}
	return owner == wallet, nil
}

// proxyAdminProbe reads the EIP-1967 admin slot directly and interprets its
// low 20 bytes as the admin address.
type proxyAdminProbe struct{}

func (proxyAdminProbe) name() string { return MethodProxyAdmin }

func (proxyAdminProbe) attempt(ctx context.Context, client EVMClient, contract, wallet common.Address) (bool, error) {
	raw, err := client.StorageAt(ctx, contract, eip1967AdminSlot, nil)
	if err != nil {
		return false, err
	}
	admin := common.BytesToAddress(raw)
	if admin == (common.Address{}) {
		return false, nil
	}
	return admin == wallet, nil
}

// accessControlProbe asks an AccessControl contract whether the wallet holds
// DEFAULT_ADMIN_ROLE, the all-zero role identifier.
type accessControlProbe struct{}

func (accessControlProbe) name() string { return MethodAccessControl }

func (accessControlProbe) attempt(ctx context.Context, client EVMClient, contract, wallet common.Address) (bool, error) {
	data, err := probeABI.Pack("hasRole", [32]byte{}, wallet)
	if err != nil {
		return false, err
	}
	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return false, err
	}
	values, err := probeABI.Unpack("hasRole", output)
	if err != nil {
		return false, err
	}
	granted, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("pkh: hasRole returned non-bool value")
	}
	return granted, nil
}
