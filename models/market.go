package models

// Tool arguments as the model sends them. Dates are YYYY-MM-DD.

type MarketDataInput struct {
	Symbol    string `json:"symbol"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// StockIndicatorInput represents the input for technical indicator analysis
type StockIndicatorInput struct {
	Symbol       string `json:"symbol"`
	Indicator    string `json:"indicator"`
	CurrDate     string `json:"curr_date"`
	LookBackDays int    `json:"look_back_days"`
}

// TickerWindowInput scopes a lookup to one ticker and a trailing window.
type TickerWindowInput struct {
	Ticker       string `json:"ticker"`
	CurrDate     string `json:"curr_date"`
	LookBackDays int    `json:"look_back_days"`
}

type NewsQueryInput struct {
	Query        string `json:"query"`
	CurrDate     string `json:"curr_date"`
	LookBackDays int    `json:"look_back_days"`
}

type GlobalNewsInput struct {
	CurrDate string `json:"curr_date"`
}
