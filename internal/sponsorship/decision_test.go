package sponsorship

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validDecision() *Decision {
	return &Decision{
		Action:           ActionSponsorGas,
		ProtocolId:       "uniswap-v3",
		AgentWallet:      "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		EstimatedCostUsd: decimal.NewFromFloat(1.25),
		Reasoning:        "gas spike mitigation",
	}
}

func Test_ParseAction(t *testing.T) {
	t.Run("Should parse every known action", func(t *testing.T) {
		cases := map[string]Action{
			"sponsor_gas": ActionSponsorGas,
			"skip":        ActionSkip,
			"alert":       ActionAlert,
		}
		for raw, expected := range cases {
			parsed, err := ParseAction(raw)
			assert.Nil(t, err)
			assert.Equal(t, expected, parsed)
			assert.Equal(t, raw, parsed.String())
		}
	})

	t.Run("Should reject unknown actions", func(t *testing.T) {
		_, err := ParseAction("mint_tokens")
		assert.NotNil(t, err)
	})

	t.Run("Should fail json decoding on an unknown action", func(t *testing.T) {
		decision := &Decision{}
		err := json.Unmarshal([]byte(`{"action":"mint_tokens","protocolId":"p"}`), decision)
		assert.NotNil(t, err)
	})

	t.Run("Should round-trip through json", func(t *testing.T) {
		raw, err := json.Marshal(validDecision())
		assert.Nil(t, err)

		decoded := &Decision{}
		assert.Nil(t, json.Unmarshal(raw, decoded))
		assert.Equal(t, ActionSponsorGas, decoded.Action)
		assert.Equal(t, "uniswap-v3", decoded.ProtocolId)
		assert.True(t, decoded.EstimatedCostUsd.Equal(decimal.NewFromFloat(1.25)))
	})
}

func Test_DecisionValidate(t *testing.T) {
	t.Run("Should accept a well-formed sponsor_gas decision", func(t *testing.T) {
		assert.Nil(t, validDecision().Validate())
	})

	t.Run("Should reject non-sponsorable actions", func(t *testing.T) {
		for _, action := range []Action{ActionSkip, ActionAlert, ActionUnknown} {
			d := validDecision()
			d.Action = action

			err := d.Validate()
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		}
	})

	t.Run("Should reject a missing agent wallet", func(t *testing.T) {
		d := validDecision()
		d.AgentWallet = ""
		assert.NotNil(t, d.Validate())
	})

	t.Run("Should reject a missing protocol id", func(t *testing.T) {
		d := validDecision()
		d.ProtocolId = ""
		assert.NotNil(t, d.Validate())
	})

	t.Run("Should reject a non-positive estimated cost", func(t *testing.T) {
		d := validDecision()
		d.EstimatedCostUsd = decimal.Zero
		assert.NotNil(t, d.Validate())

		d.EstimatedCostUsd = decimal.NewFromFloat(-0.5)
		assert.NotNil(t, d.Validate())
	})
}
