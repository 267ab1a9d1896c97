package chainreader

import (
	"bytes"
	"embed"
	"fmt"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/*.json
var abiFS embed.FS

// loadABI parses an embedded ABI JSON fragment into a go-ethereum abi.ABI.
// The fragments here are hand-written function-only subsets (no
// constructor/events) mirroring the minimal ABIs the original reader builds
// inline per method group.
func loadABI(name string) (ethabi.ABI, error) {
	raw, err := abiFS.ReadFile("abi/" + name + ".json")
	if err != nil {
		return ethabi.ABI{}, fmt.Errorf("chainreader: reading embedded abi %q: %w", name, err)
	}

	parsed, err := ethabi.JSON(bytes.NewReader(raw))
	if err != nil {
		return ethabi.ABI{}, fmt.Errorf("chainreader: parsing embedded abi %q: %w", name, err)
	}
	return parsed, nil
}
