// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package broker

import (
	"encoding/json"

	"github.com/samber/oops"
)

// Currency is the currency field of a telemetry payload. On the wire it is
// either a plain code string ("USD") or an object with a display name and
// sign ({"name": "US Dollar", "sign": "$"}). Exactly one form is populated.
type Currency struct {
	Code string
	Name string
	Sign string
}

// IsZero reports whether neither form is populated.
func (c Currency) IsZero() bool {
	return c.Code == "" && c.Name == "" && c.Sign == ""
}

type currencyPair struct {
	Name string `json:"name"`
	Sign string `json:"sign"`
}

// UnmarshalJSON accepts either a JSON string or a {name, sign} object.
// Any other JSON type is rejected.
func (c *Currency) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		*c = Currency{Code: code}
		return nil
	}

	var pair currencyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return oops.Code("TELEMETRY_INVALID_CURRENCY").
			Errorf("currency must be a string or an object with name and sign")
	}
	*c = Currency{Name: pair.Name, Sign: pair.Sign}
	return nil
}

// MarshalJSON emits the form the value holds: a string when Code is set,
// otherwise a {name, sign} object.
func (c Currency) MarshalJSON() ([]byte, error) {
	if c.Code != "" {
		return json.Marshal(c.Code)
	}
	return json.Marshal(currencyPair{Name: c.Name, Sign: c.Sign})
}
