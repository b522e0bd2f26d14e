package main

import (
	"fmt"
	"strconv"
	"strings"

	"basket-trading/config"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

// parseInstrument accepts "EXCHANGE:SYMBOL"; a bare symbol means NSE.
func parseInstrument(s string) (model.Instrument, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return model.Instrument{}, tradeerr.Validation("parseInstrument", "empty instrument")
	}
	ex, sym, ok := strings.Cut(s, ":")
	if !ok {
		return model.Instrument{Exchange: model.ExchangeNSE, Symbol: s}, nil
	}
	if sym == "" || !model.SupportedExchange(ex) {
		return model.Instrument{}, tradeerr.Validation("parseInstrument", "bad instrument %q", s)
	}
	return model.Instrument{Exchange: ex, Symbol: sym}, nil
}

func parseInstruments(args []string) ([]model.Instrument, error) {
	if len(args) == 0 {
		return nil, tradeerr.Validation("parseInstruments", "no instruments given")
	}
	out := make([]model.Instrument, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			in, err := parseInstrument(part)
			if err != nil {
				return nil, err
			}
			out = append(out, in)
		}
	}
	return out, nil
}

// parseBasket reads "NSE:TCS=50,INFY=50" into basket members.
func parseBasket(s string) ([]model.BasketStock, error) {
	var out []model.BasketStock
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		inst, w, ok := strings.Cut(part, "=")
		if !ok {
			return nil, tradeerr.Validation("parseBasket", "%q: want INSTRUMENT=WEIGHT", part)
		}
		in, err := parseInstrument(inst)
		if err != nil {
			return nil, err
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return nil, tradeerr.Validation("parseBasket", "%q: bad weight", part)
		}
		out = append(out, model.BasketStock{Symbol: in.Symbol, Exchange: in.Exchange, Weight: weight})
	}
	if len(out) == 0 {
		return nil, tradeerr.Validation("parseBasket", "empty basket")
	}
	return out, nil
}

// basketArg resolves -basket NAME (from the policy file) or -stocks SPEC.
func basketArg(p *config.PolicyFile, name, stocks string) ([]model.BasketStock, error) {
	switch {
	case name != "" && stocks != "":
		return nil, tradeerr.Validation("basket", "use either -basket or -stocks")
	case name != "":
		return p.Basket(name)
	case stocks != "":
		return parseBasket(stocks)
	}
	return nil, fmt.Errorf("one of -basket or -stocks is required")
}
