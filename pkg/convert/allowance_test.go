package convert

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideAllowanceSteps(t *testing.T) {
	tests := []struct {
		name      string
		current   *big.Int
		requested *big.Int
		want      AllowanceDecision
	}{
		{"zero allowance", big.NewInt(0), big.NewInt(100), AllowanceDecision{NeedsRaise: true}},
		{"insufficient allowance", big.NewInt(50), big.NewInt(100), AllowanceDecision{NeedsReset: true, NeedsRaise: true}},
		{"exact allowance", big.NewInt(100), big.NewInt(100), AllowanceDecision{}},
		{"larger allowance", big.NewInt(200), big.NewInt(100), AllowanceDecision{}},
		{"nil allowance", nil, big.NewInt(1), AllowanceDecision{NeedsRaise: true}},
		{"zero request", big.NewInt(0), big.NewInt(0), AllowanceDecision{}},
		{
			"max uint256 allowance",
			new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
			big.NewInt(100),
			AllowanceDecision{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideAllowanceSteps(tt.current, tt.requested))
		})
	}
}

func TestDecideAllowanceSteps_ResetImpliesRaise(t *testing.T) {
	for cur := int64(0); cur <= 20; cur++ {
		for req := int64(0); req <= 20; req++ {
			d := DecideAllowanceSteps(big.NewInt(cur), big.NewInt(req))
			assert.Equal(t, cur < req, d.NeedsRaise, "cur=%d req=%d", cur, req)
			assert.Equal(t, cur < req && cur != 0, d.NeedsReset, "cur=%d req=%d", cur, req)
		}
	}
}
