package dataflows

import (
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
)

// Sources bundles the clients one run reads from. Longport is nil when no
// credentials are configured; market data then comes from Yahoo only.
type Sources struct {
	Yahoo    *YahooFinanceClient
	Longport *LongportClient
	Finnhub  *FinnhubClient
	News     *NewsScraperClient
	Reddit   *RedditClient
	Offline  bool
}

// NewSources builds every client. Offline sources read cached files only.
func NewSources(cfg *config.Config, offline bool, log logrus.FieldLogger) *Sources {
	s := &Sources{
		Yahoo:   NewYahooFinanceClient(cfg, offline),
		Finnhub: NewFinnhubClient(cfg, offline),
		News:    NewNewsScraperClient(cfg, offline),
		Reddit:  NewRedditClient(cfg, offline),
		Offline: offline,
	}
	lp, err := NewLongportClient(cfg, offline)
	if err != nil {
		if log != nil {
			log.WithError(err).Debug("longport disabled")
		}
	} else {
		s.Longport = lp
	}
	return s
}
