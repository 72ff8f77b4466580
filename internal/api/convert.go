package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rickgao/pricefeed/internal/model"
)

// flexibleID accepts a user id sent either as a JSON string or a number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// ToUser converts an API user to a model.User.
func (u APIUser) ToUser() model.User {
	return model.User{
		ID:    string(u.ID),
		Email: u.Email,
	}
}

// NormalizeTicker trims a ticker typed by a user. Tickers are
// case-sensitive, so the case is kept.
func NormalizeTicker(ticker string) string {
	return strings.TrimSpace(ticker)
}

// ToSubscriptions converts API tickers to model subscriptions, dropping
// blanks and duplicates while keeping order.
func ToSubscriptions(tickers []string) []model.Subscription {
	seen := make(map[string]bool, len(tickers))
	subs := make([]model.Subscription, 0, len(tickers))
	for _, t := range tickers {
		t = NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		subs = append(subs, model.Subscription{Ticker: t, Source: "api"})
	}
	return subs
}
