package domain

import "fmt"

// Network is an EVM network the minter scrapes deposits from, identified by chain id.
type Network uint64

const (
	NetworkPolygonMainnet Network = 137
	NetworkPolygonAmoy    Network = 80002
)

type NetworkCode string

const (
	NetworkCodePolygonMainnet NetworkCode = "POLYGON_MAINNET"
	NetworkCodePolygonAmoy    NetworkCode = "POLYGON_AMOY"
)

// NetworkToCode maps a network to its internal code, used in metric labels and keys.
var NetworkToCode = map[Network]NetworkCode{
	NetworkPolygonMainnet: NetworkCodePolygonMainnet,
	NetworkPolygonAmoy:    NetworkCodePolygonAmoy,
}

// NetworkFromChainID returns the network for a chain id.
func NetworkFromChainID(chainID uint64) (Network, error) {
	n := Network(chainID)
	if _, ok := NetworkToCode[n]; !ok {
		return 0, fmt.Errorf("unknown network with chain id %d", chainID)
	}
	return n, nil
}

func (n Network) ChainID() uint64 {
	return uint64(n)
}

func (n Network) Code() NetworkCode {
	if code, ok := NetworkToCode[n]; ok {
		return code
	}
	return NetworkCode(fmt.Sprintf("CHAIN_%d", uint64(n)))
}

func (n Network) String() string {
	switch n {
	case NetworkPolygonMainnet:
		return "Polygon Mainnet"
	case NetworkPolygonAmoy:
		return "Polygon Amoy"
	default:
		return fmt.Sprintf("chain %d", uint64(n))
	}
}
