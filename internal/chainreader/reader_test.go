package chainreader

import (
	"math/big"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"WBTC": "BTC",
		"WETH": "ETH",
		"SOL":  "SOL",
		"W":    "W",
	}
	for in, want := range cases {
		if got := normalizeSymbol(in); got != want {
			t.Errorf("normalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWeiToFloat(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000000000000000000", 10) // 1500 at 1e30
	got := weiToFloat(v, priceScale)
	if got < 1499.9999 || got > 1500.0001 {
		t.Errorf("weiToFloat = %v, want ~1500", got)
	}

	if weiToFloat(nil, priceScale) != 0 {
		t.Errorf("weiToFloat(nil) should be 0")
	}
}
